package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	healthyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	unhealthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	detailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// SubsystemStatus is the last health check result of one subsystem.
type SubsystemStatus struct {
	Name    string
	Healthy bool
	Detail  string
}

// StatusComponent renders subsystem health as a tree.
type StatusComponent struct {
	subsystems map[string]SubsystemStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{subsystems: make(map[string]SubsystemStatus)}
}

// Update records the latest status of a subsystem.
func (s *StatusComponent) Update(status SubsystemStatus) {
	s.subsystems[status.Name] = status
}

// View renders the status component.
func (s *StatusComponent) View() string {
	if len(s.subsystems) == 0 {
		return detailStyle.Render("No health checks yet")
	}

	names := make([]string, 0, len(s.subsystems))
	for name := range s.subsystems {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		st := s.subsystems[name]

		branch := "├─"
		if i == len(names)-1 {
			branch = "└─"
		}

		mark := healthyStyle.Render("● ok")
		if !st.Healthy {
			mark = unhealthyStyle.Render("○ failing")
		}

		fmt.Fprintf(&sb, "%s %s: %s", branch, name, mark)
		if st.Detail != "" {
			sb.WriteString(" " + detailStyle.Render(st.Detail))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
