// Package tui feeds metric events to the terminal dashboard.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/chainprobe/business/report/domain"
	"github.com/fd1az/chainprobe/pkg/ui"
)

// SendFunc delivers a message to the running program.
type SendFunc func(tea.Msg)

// Writer converts events to dashboard messages.
type Writer struct {
	send SendFunc
}

// NewWriter creates a writer. A nil send uses ui.Send.
func NewWriter(send SendFunc) *Writer {
	if send == nil {
		send = ui.Send
	}
	return &Writer{send: send}
}

// Name implements app.Writer.
func (w *Writer) Name() string { return "tui" }

// Write implements app.Writer.
func (w *Writer) Write(_ context.Context, ev domain.Event) error {
	if msg := toMsg(ev); msg != nil {
		w.send(msg)
	}
	return nil
}

func toMsg(ev domain.Event) tea.Msg {
	switch e := ev.(type) {
	case domain.Reorganization:
		return ui.ReorgMsg{
			Time:           e.Time,
			AttachedLength: e.AttachedLength,
			OldTip:         e.OldTip.Number,
			NewTip:         e.NewTip.Number,
			Ancestor:       e.Ancestor.Number,
			NewTipHash:     e.NewTip.Hash.Hex(),
		}
	case domain.Propagation:
		return ui.PropagationMsg{
			Time:        e.Time,
			MessageType: string(e.MessageType),
			Percentile:  e.Percentile,
			Interval:    e.TimeInterval,
		}
	case domain.HighLatency:
		return ui.HighLatencyMsg{
			Time:        e.Time,
			PeerAddress: e.PeerAddress,
			Interval:    e.TimeInterval,
		}
	case domain.PeerCount:
		return ui.PeerCountMsg{Time: e.Time, Peers: e.PeersTotal}
	default:
		return nil
	}
}
