// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ReorgRow represents a reorganization in the list.
type ReorgRow struct {
	Time           time.Time
	AttachedLength uint64
	OldTip         uint64
	NewTip         uint64
	Ancestor       uint64
	NewTipHash     string
}

// ReorgsComponent renders the most recent reorganizations, newest first.
type ReorgsComponent struct {
	rows    []ReorgRow
	maxRows int
	visible int
	offset  int
}

// NewReorgsComponent creates a component keeping at most maxRows rows and
// showing visible of them at a time.
func NewReorgsComponent(maxRows, visible int) *ReorgsComponent {
	return &ReorgsComponent{
		rows:    make([]ReorgRow, 0),
		maxRows: maxRows,
		visible: visible,
	}
}

// Add adds a new reorganization to the top of the list.
func (r *ReorgsComponent) Add(row ReorgRow) {
	r.rows = append([]ReorgRow{row}, r.rows...)
	if len(r.rows) > r.maxRows {
		r.rows = r.rows[:r.maxRows]
	}
}

// Len returns the number of stored rows.
func (r *ReorgsComponent) Len() int {
	return len(r.rows)
}

// Clear clears all rows.
func (r *ReorgsComponent) Clear() {
	r.rows = make([]ReorgRow, 0)
	r.offset = 0
}

// ScrollUp moves the window towards newer rows.
func (r *ReorgsComponent) ScrollUp() {
	if r.offset > 0 {
		r.offset--
	}
}

// ScrollDown moves the window towards older rows.
func (r *ReorgsComponent) ScrollDown() {
	if r.offset+r.visible < len(r.rows) {
		r.offset++
	}
}

// View renders the reorganizations table.
func (r *ReorgsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	deepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("REORGANIZATIONS (%d)", len(r.rows))))
	sb.WriteString("\n")

	if len(r.rows) == 0 {
		sb.WriteString(mutedStyle.Render("No reorganizations observed yet..."))
		return sb.String()
	}

	sb.WriteString("┌──────────┬──────────┬──────────┬──────────┬────────┬──────────────┐\n")
	sb.WriteString("│   Time   │ Ancestor │  Old tip │  New tip │ Length │   New hash   │\n")
	sb.WriteString("├──────────┼──────────┼──────────┼──────────┼────────┼──────────────┤\n")

	end := min(r.offset+r.visible, len(r.rows))
	for _, row := range r.rows[r.offset:end] {
		length := fmt.Sprintf("%6d", row.AttachedLength)
		if row.AttachedLength >= 3 {
			length = deepStyle.Render(length)
		}
		sb.WriteString(fmt.Sprintf("│ %8s │%9d │%9d │%9d │ %s │ %-12s │\n",
			row.Time.Format("15:04:05"),
			row.Ancestor,
			row.OldTip,
			row.NewTip,
			length,
			abbreviate(row.NewTipHash, 12),
		))
	}

	sb.WriteString("└──────────┴──────────┴──────────┴──────────┴────────┴──────────────┘")
	if len(r.rows) > r.visible {
		sb.WriteString("\n")
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("showing %d-%d of %d", r.offset+1, end, len(r.rows))))
	}
	return sb.String()
}

func abbreviate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	half := (width - 2) / 2
	return s[:half] + ".." + s[len(s)-half:]
}
