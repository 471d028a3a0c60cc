// Package domain contains the metric events produced by the chain tracker
// and the gossip probe.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies an event variant.
type Kind string

const (
	KindReorganization Kind = "reorganization"
	KindPropagation    Kind = "propagation"
	KindHighLatency    Kind = "high_latency"
	KindPeerCount      Kind = "peer_count"
)

// Event is the closed set of metric events. Only types in this package
// implement it.
type Event interface {
	Kind() Kind
	// OccurredAt is the timestamp the event is stored under.
	OccurredAt() time.Time
	isEvent()
}

// BlockRef is a (number, hash) pair.
type BlockRef struct {
	Number uint64
	Hash   common.Hash
}

// Reorganization reports that the tracked tip was replaced by a competing
// branch. Time is the ancestor's block timestamp.
type Reorganization struct {
	Time           time.Time
	AttachedLength uint64
	OldTip         BlockRef
	NewTip         BlockRef
	Ancestor       BlockRef
}

func (Reorganization) Kind() Kind              { return KindReorganization }
func (e Reorganization) OccurredAt() time.Time { return e.Time }
func (Reorganization) isEvent()                {}

// MessageType names the announcement being measured.
type MessageType string

const (
	MessageCompactBlock    MessageType = "compact_block"
	MessageTransactionHash MessageType = "transaction_hash"
)

// Propagation reports that the share of live peers that delivered a message
// crossed Percentile, TimeInterval after its first sighting.
type Propagation struct {
	Time         time.Time
	MessageType  MessageType
	Percentile   int
	TimeInterval time.Duration
}

func (Propagation) Kind() Kind              { return KindPropagation }
func (e Propagation) OccurredAt() time.Time { return e.Time }
func (Propagation) isEvent()                {}

// HighLatency reports a peer whose first delivery of a compact block came
// at least the configured threshold after the first sighting.
type HighLatency struct {
	Time         time.Time
	PeerAddress  string
	TimeInterval time.Duration
}

func (HighLatency) Kind() Kind              { return KindHighLatency }
func (e HighLatency) OccurredAt() time.Time { return e.Time }
func (HighLatency) isEvent()                {}

// PeerCount is a snapshot of live peers taken on every connect and
// disconnect.
type PeerCount struct {
	Time       time.Time
	PeersTotal int
}

func (PeerCount) Kind() Kind              { return KindPeerCount }
func (e PeerCount) OccurredAt() time.Time { return e.Time }
func (PeerCount) isEvent()                {}
