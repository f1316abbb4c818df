package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/bridge"
	"github.com/wippyai/engine-bridge/protocol"
)

const (
	maxLogLines = 18
	eventBuffer = 256
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	moveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	bridge   *bridge.Bridge
	events   chan protocol.Event
	tier     enginebridge.Tier
	ctx      context.Context
	url      string
	loading  *protocol.Loading
	lines    []string
	input    textinput.Model
	progress progress.Model
	ready    bool
}

type bootedMsg struct {
	err error
	url string
}

type eventMsg protocol.Event

func newInteractiveModel(ctx context.Context, b *bridge.Bridge, tier enginebridge.Tier) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "START 15"
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()

	return &interactiveModel{
		bridge:   b,
		events:   make(chan protocol.Event, eventBuffer),
		tier:     tier,
		ctx:      ctx,
		input:    ti,
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.boot, m.waitEvent)
}

func (m *interactiveModel) boot() tea.Msg {
	url, err := m.bridge.Init(m.ctx, bridge.ChanSink(m.events), m.tier)
	return bootedMsg{url: url, err: err}
}

func (m *interactiveModel) waitEvent() tea.Msg {
	return eventMsg(<-m.events)
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+s":
			if m.bridge.Stop() {
				m.ready = false
				m.loading = nil
				m.appendLine(helpStyle.Render("engine killed, restarting"))
			} else {
				m.appendLine(helpStyle.Render("stop requested"))
			}
			return m, nil

		case "enter":
			cmd := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if cmd == "" {
				return m, nil
			}
			if !m.ready {
				m.appendLine(errorStyle.Render("engine not ready, dropped: " + cmd))
				return m, nil
			}
			m.bridge.Send(cmd)
			m.appendLine(commandStyle.Render("> " + cmd))
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.progress.Width = max(msg.Width-4, 10)

	case bootedMsg:
		m.err = msg.err
		m.url = msg.url
		return m, nil

	case eventMsg:
		m.handleEvent(protocol.Event(msg))
		return m, m.waitEvent
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) handleEvent(ev protocol.Event) {
	switch ev.Kind {
	case protocol.KindLoading:
		m.loading = ev.Loading
	case protocol.KindOK:
		m.ready = true
		m.appendLine(moveStyle.Render("engine ready"))
	case protocol.KindError, protocol.KindUnknown:
		m.appendLine(errorStyle.Render(ev.String()))
	case protocol.KindPos, protocol.KindPosPair, protocol.KindSwap, protocol.KindBestLine:
		m.appendLine(moveStyle.Render(ev.String()))
	default:
		m.appendLine(infoStyle.Render(ev.String()))
	}
}

func (m *interactiveModel) appendLine(s string) {
	m.lines = append(m.lines, s)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Engine Bridge"))
	b.WriteString(" ")
	if m.url != "" {
		b.WriteString(m.url)
	} else {
		b.WriteString("resolving engine...")
	}
	if mode, ok := m.bridge.Mode(); ok {
		b.WriteString(helpStyle.Render(" (" + mode.String() + ")"))
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("esc quit"))
		return b.String()
	}

	if !m.ready {
		pct := 0.0
		if m.loading != nil {
			pct = m.loading.Progress
		}
		b.WriteString(m.progress.ViewAs(pct))
		if m.loading != nil && m.loading.LoadedBytes != nil && m.loading.TotalBytes != nil {
			b.WriteString(fmt.Sprintf(" %s / %s",
				humanize.IBytes(uint64(*m.loading.LoadedBytes)),
				humanize.IBytes(uint64(*m.loading.TotalBytes))))
		}
		b.WriteString("\n\n")
	}

	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter send • ctrl+s stop search • esc quit"))
	return b.String()
}

func runInteractive(ctx context.Context) error {
	tier, err := cfg.QualityTier()
	if err != nil {
		return err
	}
	b, err := newBridge()
	if err != nil {
		return err
	}

	// log output would corrupt the alternate screen
	installLogger(zap.NewNop())

	m := newInteractiveModel(ctx, b, tier)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()

	// keep engine output flowing while the engine shuts down
	go func() {
		for range m.events {
		}
	}()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
