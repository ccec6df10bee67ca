package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/opd-ai/mangeomic/session"
)

const (
	refreshInterval   = 100 * time.Millisecond
	sinkCheckInterval = 2 * time.Second
	visibleLogLines   = 8
)

// controller is the command surface the dashboard and the headless loop
// drive. *mangeomic.Desktop implements it.
type controller interface {
	TogglePairing() error
	ToggleStreaming() error
	Disconnect()
	SinkReady() bool
	Snapshot() session.Snapshot
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	logBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyles = map[session.Status]lipgloss.Style{
		session.StatusStreaming: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		session.StatusConnected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		session.StatusSearching: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		session.StatusIdle:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
	}
)

type refreshMsg time.Time

type sinkStatusMsg bool

// model renders session snapshots and maps keys to commands.
type model struct {
	ctl       controller
	snap      session.Snapshot
	sinkReady bool
	lastErr   error
	width     int
}

func newModel(ctl controller) model {
	return model{ctl: ctl, snap: ctl.Snapshot()}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func checkSink(ctl controller) tea.Cmd {
	return func() tea.Msg {
		return sinkStatusMsg(ctl.SinkReady())
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(refresh(), checkSink(m.ctl))
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case refreshMsg:
		m.snap = m.ctl.Snapshot()
		return m, refresh()
	case sinkStatusMsg:
		m.sinkReady = bool(msg)
		return m, tea.Tick(sinkCheckInterval, func(time.Time) tea.Msg {
			return checkSink(m.ctl)()
		})
	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastErr = nil
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "p":
		if !m.snap.Paired {
			m.lastErr = m.ctl.TogglePairing()
		}
	case "s":
		if m.snap.Paired {
			m.lastErr = m.ctl.ToggleStreaming()
		}
	case "d":
		if m.snap.Paired {
			m.ctl.Disconnect()
		}
	}
	m.snap = m.ctl.Snapshot()
	return m, nil
}

// View implements tea.Model.
func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("MangeoMic Desktop"))
	b.WriteString("\n\n")

	status := m.snap.Status()
	b.WriteString(statusStyles[status].Render("● " + strings.ToUpper(status.String())))
	if m.snap.PhoneIP != "" {
		b.WriteString(labelStyle.Render("   phone ") + m.snap.PhoneIP)
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("link quality (jitter)") + "\n")
	b.WriteString(sparkline(m.snap.LatencyHistory, m.snap.Degraded()))
	b.WriteString("\n")

	latency := fmt.Sprintf("%.0f ms", m.snap.LatencyMs())
	if m.snap.Degraded() {
		latency = badStyle.Render(latency)
	} else {
		latency = goodStyle.Render(latency)
	}
	mic := goodStyle.Render("ready")
	if !m.sinkReady {
		mic = badStyle.Render("unavailable")
	}
	fmt.Fprintf(&b, "%s %s   %s %d   %s %s\n\n",
		labelStyle.Render("jitter"), latency,
		labelStyle.Render("packets"), m.snap.PacketCount,
		labelStyle.Render("microphone"), mic)

	logs := m.snap.Logs
	if len(logs) > visibleLogLines {
		logs = logs[len(logs)-visibleLogLines:]
	}
	box := logBoxStyle
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	b.WriteString(box.Render(strings.Join(logs, "\n")))
	b.WriteString("\n")

	if m.lastErr != nil {
		b.WriteString(badStyle.Render(m.lastErr.Error()) + "\n")
	}
	b.WriteString(helpStyle.Render(m.help()))
	b.WriteString("\n")
	return b.String()
}

func (m model) help() string {
	if m.snap.Paired {
		if m.snap.Streaming {
			return "s stop audio • d disconnect • q quit"
		}
		return "s start audio • d disconnect • q quit"
	}
	if m.snap.PairingActive {
		return "p stop search • q quit"
	}
	return "p search for phone • q quit"
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// sparkline draws samples on a scale of at least 0..100ms.
func sparkline(samples []float64, degraded bool) string {
	top := 100.0
	for _, s := range samples {
		top = math.Max(top, s)
	}

	var b strings.Builder
	for _, s := range samples {
		idx := int(math.Round(s / top * float64(len(sparkBlocks)-1)))
		if idx < 0 {
			idx = 0
		}
		b.WriteRune(sparkBlocks[idx])
	}
	if degraded {
		return badStyle.Render(b.String())
	}
	return goodStyle.Render(b.String())
}
