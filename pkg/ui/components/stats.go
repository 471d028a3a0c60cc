package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds counters for display.
type Stats struct {
	Reorganizations int64
	Propagations    int64
	HighLatency     int64
	Peers           int
	PeakPeers       int
	Errors          int64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// Stats returns the current statistics.
func (s *StatsComponent) Stats() Stats {
	return s.stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	lateDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.HighLatency))
	if s.stats.HighLatency > 0 {
		lateDisplay = warnStyle.Render(fmt.Sprintf("%d", s.stats.HighLatency))
	}

	errorsDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	if s.stats.Errors > 0 {
		errorsDisplay = errorStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Peers: %s (peak %d)  │  Reorgs: %s  │  Crossings: %s\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Peers)),
			s.stats.PeakPeers,
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Reorganizations)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Propagations)),
		) +
		fmt.Sprintf("Late deliveries: %s  │  Errors: %s",
			lateDisplay,
			errorsDisplay,
		)
}
