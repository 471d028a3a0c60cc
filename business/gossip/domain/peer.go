// Package domain contains the peer and protocol types of the gossip probe.
package domain

import "fmt"

// PeerID identifies a live connection. The transport assigns a fresh id on
// every connect, so a reconnecting node is a new peer.
type PeerID uint64

func (id PeerID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// PeerInfo describes a connected peer.
type PeerInfo struct {
	ID      PeerID
	Address string // remote host:port, empty when unknown
	Name    string // client identifier from the handshake
}

// Protocol is a wire message category.
type Protocol string

const (
	// ProtocolRelay carries compact blocks and transaction relays.
	ProtocolRelay Protocol = "relay"
	// ProtocolSync carries header and block synchronisation.
	ProtocolSync Protocol = "sync"
)
