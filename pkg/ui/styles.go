package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorSecondary = lipgloss.Color("#10B981")
	ColorDanger    = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorBorder    = lipgloss.Color("#374151")
	ColorText      = lipgloss.Color("#FFFFFF")
)

var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(ColorPrimary).
			Padding(0, 2)

	SectionStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	HelpStyle    = lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 1)
	MutedValue   = lipgloss.NewStyle().Foreground(ColorMuted)

	// Peer and step states.
	OKStyle      = lipgloss.NewStyle().Foreground(ColorSecondary)
	PendingStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	FailedStyle  = lipgloss.NewStyle().Foreground(ColorDanger)

	// Activity feed entries.
	ReorgStyle = lipgloss.NewStyle().Foreground(ColorDanger)
	LateStyle  = lipgloss.NewStyle().Foreground(ColorWarning)
)
