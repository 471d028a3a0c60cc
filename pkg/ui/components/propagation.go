package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PropagationSample is one percentile crossing.
type PropagationSample struct {
	MessageType string
	Percentile  int
	Interval    time.Duration
}

type propagationKey struct {
	messageType string
	percentile  int
}

type propagationStat struct {
	count int
	total time.Duration
	last  time.Duration
	max   time.Duration
}

// PropagationComponent aggregates percentile crossings per message type.
type PropagationComponent struct {
	stats map[propagationKey]*propagationStat
}

// NewPropagationComponent creates a new propagation component.
func NewPropagationComponent() *PropagationComponent {
	return &PropagationComponent{stats: make(map[propagationKey]*propagationStat)}
}

// Record adds a sample.
func (p *PropagationComponent) Record(s PropagationSample) {
	k := propagationKey{messageType: s.MessageType, percentile: s.Percentile}
	st, ok := p.stats[k]
	if !ok {
		st = &propagationStat{}
		p.stats[k] = st
	}
	st.count++
	st.total += s.Interval
	st.last = s.Interval
	if s.Interval > st.max {
		st.max = s.Interval
	}
}

// Clear drops all samples.
func (p *PropagationComponent) Clear() {
	p.stats = make(map[propagationKey]*propagationStat)
}

// View renders one row per (message type, percentile).
func (p *PropagationComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("PROPAGATION"))
	sb.WriteString("\n")

	if len(p.stats) == 0 {
		sb.WriteString(mutedStyle.Render("Waiting for announcements..."))
		return sb.String()
	}

	keys := make([]propagationKey, 0, len(p.stats))
	for k := range p.stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].messageType != keys[j].messageType {
			return keys[i].messageType < keys[j].messageType
		}
		return keys[i].percentile > keys[j].percentile
	})

	sb.WriteString(fmt.Sprintf("%-17s %4s %7s %9s %9s %9s\n", "Message", "Pct", "Count", "Last", "Avg", "Max"))
	for _, k := range keys {
		st := p.stats[k]
		avg := st.total / time.Duration(st.count)
		sb.WriteString(fmt.Sprintf("%-17s %4s %7d %9s %9s %9s\n",
			k.messageType,
			fmt.Sprintf("p%d", k.percentile),
			st.count,
			valueStyle.Render(formatInterval(st.last)),
			formatInterval(avg),
			formatInterval(st.max),
		))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatInterval(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
