// Package app contains the gossip probe and its port definitions.
package app

import (
	"context"

	"github.com/fd1az/chainprobe/business/gossip/domain"
)

// Handler receives transport callbacks. Calls for different peers may run
// concurrently. A non-nil error is fatal to the transport.
type Handler interface {
	Connected(ctx context.Context, peer domain.PeerInfo) error
	Disconnected(ctx context.Context, id domain.PeerID) error
	Received(ctx context.Context, protocol domain.Protocol, peer domain.PeerID, code uint64, payload []byte) error
}

// PeerTransport owns peer connections and the handshake.
type PeerTransport interface {
	// Start begins accepting and dialing peers. It returns once the
	// transport is listening; handler errors are reported via Err.
	Start(ctx context.Context, h Handler) error
	Stop()
	// Err delivers the first fatal handler error.
	Err() <-chan error
	PeerAddress(id domain.PeerID) (string, bool)
	PeerCount() int
}
