package ui

import (
	"time"
)

// Message types for TUI updates. They carry display values only so the
// dashboard does not depend on the business packages.

// TipMsg is sent when the tracked chain tip advances.
type TipMsg struct {
	Number uint64
	Hash   string
}

// ReorgMsg is sent when a chain reorganization is observed.
type ReorgMsg struct {
	Time           time.Time
	AttachedLength uint64
	OldTip         uint64
	NewTip         uint64
	Ancestor       uint64
	NewTipHash     string
}

// PropagationMsg is sent when a message crosses a percentile of live peers.
type PropagationMsg struct {
	Time        time.Time
	MessageType string
	Percentile  int
	Interval    time.Duration
}

// HighLatencyMsg is sent when a peer delivers a compact block late.
type HighLatencyMsg struct {
	Time        time.Time
	PeerAddress string
	Interval    time.Duration
}

// PeerCountMsg is sent on every peer connect and disconnect.
type PeerCountMsg struct {
	Time  time.Time
	Peers int
}

// HealthMsg carries the latest health check results.
type HealthMsg struct {
	Checks []HealthCheck
}

// HealthCheck is one named check result.
type HealthCheck struct {
	Name    string
	Healthy bool
	Detail  string
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string // "config", "chain", "gossip", "report"
	Status  string // "connecting", "connected", "failed", "done", "disabled"
	Message string
}
