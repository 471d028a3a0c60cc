// Package console writes metric events to a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fd1az/chainprobe/business/report/domain"
)

// Writer prints one line per event.
type Writer struct {
	mu      sync.Mutex
	out     io.Writer
	network string
}

// NewWriter creates a console writer. A nil out writes to stdout.
func NewWriter(out io.Writer, network string) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{out: out, network: network}
}

// Name implements app.Writer.
func (w *Writer) Name() string { return "console" }

// Write implements app.Writer.
func (w *Writer) Write(_ context.Context, ev domain.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := fmt.Fprintf(w.out, "[%s] %-8s %-14s %s\n",
		ev.OccurredAt().UTC().Format(time.RFC3339),
		w.network,
		ev.Kind(),
		Describe(ev),
	)
	return err
}

// Describe renders the event payload for humans.
func Describe(ev domain.Event) string {
	switch e := ev.(type) {
	case domain.Reorganization:
		return fmt.Sprintf("attached=%d old=#%d %s new=#%d %s ancestor=#%d %s",
			e.AttachedLength,
			e.OldTip.Number, short(e.OldTip.Hash.Hex()),
			e.NewTip.Number, short(e.NewTip.Hash.Hex()),
			e.Ancestor.Number, short(e.Ancestor.Hash.Hex()),
		)
	case domain.Propagation:
		return fmt.Sprintf("%s p%d after %s", e.MessageType, e.Percentile, e.TimeInterval.Round(time.Millisecond))
	case domain.HighLatency:
		return fmt.Sprintf("peer=%s after %s", e.PeerAddress, e.TimeInterval.Round(time.Millisecond))
	case domain.PeerCount:
		return fmt.Sprintf("peers=%d", e.PeersTotal)
	default:
		return ""
	}
}

func short(hex string) string {
	if len(hex) <= 12 {
		return hex
	}
	return hex[:8] + ".." + hex[len(hex)-4:]
}
