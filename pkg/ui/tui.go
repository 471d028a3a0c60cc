package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/chainprobe/pkg/ui/components"
)

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "connected", "done", "disabled", "failed"
}

func (s *StartupStep) settled() bool {
	switch s.Status {
	case "connected", "done", "disabled":
		return true
	}
	return false
}

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Loading/connecting
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

var stepOrder = []string{"config", "report", "chain", "gossip"}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	network string
	keys    KeyMap
	help    help.Model

	// Components
	reorgs      *components.ReorgsComponent
	propagation *components.PropagationComponent
	stats       *components.StatsComponent
	status      *components.StatusComponent

	// Phase state
	phase        Phase
	welcomeStart time.Time

	// State
	ready        bool
	quitting     bool
	paused       bool
	width        int
	height       int
	currentBlock uint64
	currentHash  string
	lastUpdate   time.Time
	errors       []ErrorEntry // last 3
	logs         []string
	activityFeed []string

	// Startup state
	startupSteps map[string]*StartupStep
	startupTime  time.Time
}

// New creates a new TUI model for network.
func New(network string) Model {
	now := time.Now()
	return Model{
		network:      network,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		reorgs:       components.NewReorgsComponent(50, 8),
		propagation:  components.NewPropagationComponent(),
		stats:        components.NewStatsComponent(),
		status:       components.NewStatusComponent(),
		phase:        PhaseWelcome,
		welcomeStart: now,
		logs:         make([]string, 0, 5),
		errors:       make([]ErrorEntry, 0, 3),
		activityFeed: make([]string, 0, 8),
		startupSteps: map[string]*StartupStep{
			"config": {Name: "Loading configuration", Status: "pending"},
			"report": {Name: "Opening event sinks", Status: "pending"},
			"chain":  {Name: "Subscribing to chain tip", Status: "pending"},
			"gossip": {Name: "Joining peer network", Status: "pending"},
		},
		startupTime: now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m *Model) leaveWelcome() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	// Update must not call Send, so trigger the callback directly.
	if OnStartModules != nil {
		go OnStartModules()
	}
}

func (m *Model) maybeShowDashboard() {
	if m.phase != PhaseStartup {
		return
	}
	for _, step := range m.startupSteps {
		if !step.settled() {
			return
		}
	}
	m.phase = PhaseDashboard
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		// During welcome phase, any other key skips to startup
		if m.phase == PhaseWelcome {
			m.leaveWelcome()
			return m, tickCmd()
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.reorgs.Clear()
			m.propagation.Clear()
			m.activityFeed = m.activityFeed[:0]
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Up):
			m.reorgs.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.reorgs.ScrollDown()
		case key.Matches(msg, m.keys.ClearErrors):
			m.errors = make([]ErrorEntry, 0, 3)
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.leaveWelcome()
		}
		return m, tickCmd()

	case TipMsg:
		m.currentBlock = msg.Number
		m.currentHash = msg.Hash
		m.lastUpdate = time.Now()

	case ReorgMsg:
		if m.paused {
			return m, nil
		}
		m.reorgs.Add(components.ReorgRow{
			Time:           msg.Time,
			AttachedLength: msg.AttachedLength,
			OldTip:         msg.OldTip,
			NewTip:         msg.NewTip,
			Ancestor:       msg.Ancestor,
			NewTipHash:     msg.NewTipHash,
		})
		st := m.stats.Stats()
		st.Reorganizations++
		m.stats.Update(st)
		m.activityFeed = addActivity(m.activityFeed,
			fmt.Sprintf("Reorg at #%d, %d block(s) attached", msg.Ancestor, msg.AttachedLength))
		m.lastUpdate = time.Now()

	case PropagationMsg:
		if m.paused {
			return m, nil
		}
		m.propagation.Record(components.PropagationSample{
			MessageType: msg.MessageType,
			Percentile:  msg.Percentile,
			Interval:    msg.Interval,
		})
		st := m.stats.Stats()
		st.Propagations++
		m.stats.Update(st)
		m.lastUpdate = time.Now()

	case HighLatencyMsg:
		if m.paused {
			return m, nil
		}
		st := m.stats.Stats()
		st.HighLatency++
		m.stats.Update(st)
		m.activityFeed = addActivity(m.activityFeed,
			fmt.Sprintf("Late block from %s (%s)", msg.PeerAddress, msg.Interval.Round(time.Millisecond)))
		m.lastUpdate = time.Now()

	case PeerCountMsg:
		st := m.stats.Stats()
		st.Peers = msg.Peers
		if msg.Peers > st.PeakPeers {
			st.PeakPeers = msg.Peers
		}
		m.stats.Update(st)
		m.lastUpdate = time.Now()

	case HealthMsg:
		for _, c := range msg.Checks {
			m.status.Update(components.SubsystemStatus{Name: c.Name, Healthy: c.Healthy, Detail: c.Detail})
		}

	case ErrorMsg:
		m.logs = addLog(m.logs, "error", msg.Error.Error())
		m.errors = append(m.errors, ErrorEntry{
			Message:   msg.Error.Error(),
			Timestamp: time.Now(),
		})
		if len(m.errors) > 3 {
			m.errors = m.errors[len(m.errors)-3:]
		}
		st := m.stats.Stats()
		st.Errors++
		m.stats.Update(st)

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)

	case StartupMsg:
		if step, ok := m.startupSteps[msg.Step]; ok {
			step.Status = msg.Status
		}
		m.maybeShowDashboard()
	}

	return m, nil
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	logLine := fmt.Sprintf("[%s] %s: %s", timestamp, level, message)
	logs = append(logs, logLine)
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// addActivity adds an activity message and returns the updated slice (keeps last 6).
func addActivity(feed []string, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s", timestamp, message)
	feed = append(feed, line)
	if len(feed) > 6 {
		feed = feed[len(feed)-6:]
	}
	return feed
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf(" chainprobe · %s ", m.network)))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	leftCol := m.propagation.View() + "\n\n" + m.stats.View() + "\n\n" + m.status.View()

	var rightContent strings.Builder
	rightContent.WriteString(m.renderActivityFeed())
	rightContent.WriteString("\n\n")
	rightContent.WriteString(m.reorgs.View())
	rightCol := rightContent.String()

	if m.width > 100 {
		left := BoxStyle.Width(m.width/2 - 2).Render(leftCol)
		right := BoxStyle.Width(m.width/2 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		width := max(m.width-4, 40)
		b.WriteString(BoxStyle.Width(width).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(rightCol))
	}

	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		b.WriteString(FailedStyle.Bold(true).Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(FailedStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(PendingStyle.Bold(true).Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

func (m Model) renderActivityFeed() string {
	var sb strings.Builder
	sb.WriteString(SectionStyle.Render("LIVE ACTIVITY"))
	sb.WriteString("\n\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(MutedValue.Render("  Nothing unusual yet..."))
		return sb.String()
	}

	for _, activity := range m.activityFeed {
		switch {
		case strings.Contains(activity, "Reorg"):
			sb.WriteString(ReorgStyle.Render("  " + activity))
		case strings.Contains(activity, "Late"):
			sb.WriteString(LateStyle.Render("  " + activity))
		default:
			sb.WriteString(MutedValue.Render("  " + activity))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderWelcomeScreen() string {
	elapsed := time.Since(m.welcomeStart)
	dots := strings.Repeat(".", int(elapsed.Milliseconds()/300)%4)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
    ██████╗██╗  ██╗ █████╗ ██╗███╗   ██╗██████╗ ██████╗  ██████╗ ██████╗ ███████╗
   ██╔════╝██║  ██║██╔══██╗██║████╗  ██║██╔══██╗██╔══██╗██╔═══██╗██╔══██╗██╔════╝
   ██║     ███████║███████║██║██╔██╗ ██║██████╔╝██████╔╝██║   ██║██████╔╝█████╗
   ██║     ██╔══██║██╔══██║██║██║╚██╗██║██╔═══╝ ██╔══██╗██║   ██║██╔══██╗██╔══╝
   ╚██████╗██║  ██║██║  ██║██║██║ ╚████║██║     ██║  ██║╚██████╔╝██████╔╝███████╗
    ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝╚═╝  ╚═══╝╚═╝     ╚═╝  ╚═╝ ╚═════╝ ╚═════╝ ╚══════╝
`
	sb.WriteString(SectionStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render(fmt.Sprintf("          reorganizations and propagation on %s", m.network)))
	sb.WriteString("\n\n\n")
	sb.WriteString(OKStyle.Render(fmt.Sprintf("                  Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("            Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStartupScreen() string {
	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(SectionStyle.Render("  chainprobe · " + m.network))
	sb.WriteString("\n\n")
	sb.WriteString(lipgloss.NewStyle().Bold(true).Foreground(ColorText).Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, k := range stepOrder {
		step, ok := m.startupSteps[k]
		if !ok {
			continue
		}

		var icon, statusText string
		var style lipgloss.Style

		switch step.Status {
		case "connected", "done":
			icon, statusText, style = "✓", "Ready", OKStyle
		case "disabled":
			icon, statusText, style = "-", "Disabled", MutedValue
		case "connecting":
			spinners := []string{"◐", "◓", "◑", "◒"}
			idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
			icon, statusText, style = spinners[idx], "Connecting...", PendingStyle
		case "failed":
			icon, statusText, style = "✗", "Failed", FailedStyle
		default:
			icon, statusText, style = "○", "Pending", MutedValue
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(icon),
			MutedValue.Render(step.Name),
			style.Render(statusText),
		))
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n")

	if len(m.logs) > 0 {
		sb.WriteString("\n")
		for _, l := range m.logs {
			sb.WriteString(MutedValue.Render("  " + l))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	tip := fmt.Sprintf("Tip: #%d", m.currentBlock)
	if m.currentHash != "" {
		tip += " " + MutedValue.Render(abbreviateHash(m.currentHash))
	}
	parts = append(parts, tip)

	st := m.stats.Stats()
	peerStyle := OKStyle.Bold(true)
	if st.Peers == 0 {
		peerStyle = FailedStyle.Bold(true)
	}
	parts = append(parts, peerStyle.Render(fmt.Sprintf("● %d peers", st.Peers)))

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		indicator := ""
		if ago < 2*time.Second {
			indicator = "▪"
		}
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago %s", ago, indicator)))
	}

	return strings.Join(parts, "  │  ")
}

func abbreviateHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + ".." + h[len(h)-4:]
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules should start.
// This is set by main.go to signal when to begin loading modules.
var OnStartModules func()

// NewProgram creates the dashboard program and registers it for Send.
func NewProgram(network string) *tea.Program {
	Program = tea.NewProgram(New(network), tea.WithAltScreen())
	return Program
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
	if _, ok := msg.(StartModulesMsg); ok && OnStartModules != nil {
		OnStartModules()
	}
}
