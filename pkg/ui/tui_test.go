package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModel_StartupMovesToDashboardWhenAllStepsSettle(t *testing.T) {
	m := New("testnet")
	m.phase = PhaseStartup

	m = update(t, m, StartupMsg{Step: "config", Status: "done"})
	m = update(t, m, StartupMsg{Step: "report", Status: "done"})
	m = update(t, m, StartupMsg{Step: "chain", Status: "connected"})
	if m.phase != PhaseStartup {
		t.Fatalf("expected startup while gossip is pending, got %s", m.phase)
	}

	m = update(t, m, StartupMsg{Step: "gossip", Status: "disabled"})
	if m.phase != PhaseDashboard {
		t.Fatalf("expected dashboard, got %s", m.phase)
	}
}

func TestModel_TracksEvents(t *testing.T) {
	m := New("testnet")
	m.phase = PhaseDashboard
	m = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 60})

	m = update(t, m, PeerCountMsg{Peers: 3})
	m = update(t, m, PeerCountMsg{Peers: 2})
	m = update(t, m, ReorgMsg{Time: time.Now(), AttachedLength: 2, Ancestor: 90, OldTip: 91, NewTip: 92})
	m = update(t, m, PropagationMsg{MessageType: "compact_block", Percentile: 99, Interval: 3 * time.Second})
	m = update(t, m, HighLatencyMsg{PeerAddress: "1.2.3.4:30303", Interval: 9 * time.Second})
	m = update(t, m, ErrorMsg{Error: errors.New("boom")})

	st := m.stats.Stats()
	if st.Peers != 2 || st.PeakPeers != 3 {
		t.Errorf("unexpected peers %d peak %d", st.Peers, st.PeakPeers)
	}
	if st.Reorganizations != 1 || st.Propagations != 1 || st.HighLatency != 1 || st.Errors != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if m.reorgs.Len() != 1 {
		t.Errorf("expected 1 reorg row, got %d", m.reorgs.Len())
	}

	view := m.View()
	for _, want := range []string{"REORGANIZATIONS (1)", "compact_block", "p99", "boom"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in dashboard", want)
		}
	}
}

func TestModel_PauseDropsEventRows(t *testing.T) {
	m := New("testnet")
	m.phase = PhaseDashboard
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if !m.paused {
		t.Fatal("expected paused")
	}

	m = update(t, m, ReorgMsg{Time: time.Now(), AttachedLength: 1})
	if m.reorgs.Len() != 0 {
		t.Errorf("expected no rows while paused, got %d", m.reorgs.Len())
	}

	// peer counts keep flowing so the status bar stays accurate
	m = update(t, m, PeerCountMsg{Peers: 4})
	if m.stats.Stats().Peers != 4 {
		t.Errorf("expected peers 4, got %d", m.stats.Stats().Peers)
	}
}

func TestModel_HealthPanel(t *testing.T) {
	m := New("testnet")
	m.phase = PhaseDashboard
	m = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 60})

	m = update(t, m, HealthMsg{Checks: []HealthCheck{
		{Name: "chain", Healthy: true, Detail: "last header 3s ago"},
		{Name: "gossip", Healthy: false, Detail: "no peers"},
	}})

	view := m.View()
	for _, want := range []string{"chain: ● ok", "last header 3s ago", "gossip: ○ failing"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in dashboard", want)
		}
	}
}
