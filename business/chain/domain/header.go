// Package domain contains the core domain types for the chain context.
package domain

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned by header sources when the queried node does not
// know a hash.
var ErrNotFound = errors.New("header not found")

// Header is an observed block header. Identity is Hash.
type Header struct {
	Hash       common.Hash
	ParentHash common.Hash
	Number     uint64
	Timestamp  time.Time
}

// Tip returns the (number, hash) pair of h.
func (h *Header) Tip() ChainTip {
	return ChainTip{Number: h.Number, Hash: h.Hash}
}

// ChainTip is the tracker's belief of the canonical head.
type ChainTip struct {
	Number uint64
	Hash   common.Hash
}

// ConnectionState represents the state of the header stream.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)
