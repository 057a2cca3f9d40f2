package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/loomhq/loom/internal/wire"
)

var (
	styleUser    = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleConfirm = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	styleFinal   = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
)

type chatModel struct {
	ti    textinput.Model
	vp    viewport.Model
	spin  spinner.Model
	rend  *glamour.TermRenderer
	conn  *websocket.Conn
	inbox chan wire.Envelope

	lines           []string
	awaitingConfirm bool
	confirmPrompt   string
	waiting         bool
	ready           bool
	width, height   int
	err             error
}

type eventMsg wire.Envelope
type connClosedMsg struct{}

func newChatModel(addr string) (*chatModel, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("loomctl: dial %s: %w", addr, err)
	}

	ti := textinput.New()
	ti.Placeholder = "say something to loomd... (Enter to send, Ctrl+C to quit)"
	ti.Focus()
	ti.Prompt = "> "
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	rend, _ := glamour.NewTermRenderer(glamour.WithAutoStyle())

	m := &chatModel{
		ti:    ti,
		spin:  sp,
		rend:  rend,
		conn:  conn,
		inbox: make(chan wire.Envelope, 32),
	}
	go m.readLoop()
	return m, nil
}

func (m *chatModel) readLoop() {
	defer close(m.inbox)
	for {
		var env wire.Envelope
		if err := m.conn.ReadJSON(&env); err != nil {
			return
		}
		m.inbox <- env
	}
}

func waitForEvent(inbox chan wire.Envelope) tea.Cmd {
	return func() tea.Msg {
		env, ok := <-inbox
		if !ok {
			return connClosedMsg{}
		}
		return eventMsg(env)
	}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.inbox))
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ti.Width = msg.Width - 4
		m.vp = viewport.New(msg.Width-2, msg.Height-4)
		m.vp.SetContent(m.render())
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			_ = m.conn.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case eventMsg:
		m.onEvent(wire.Envelope(msg))
		m.vp.SetContent(m.render())
		m.vp.GotoBottom()
		return m, waitForEvent(m.inbox)

	case connClosedMsg:
		m.lines = append(m.lines, styleError.Render("connection to loomd closed"))
		m.vp.SetContent(m.render())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

func (m *chatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.ti.Value())
	m.ti.SetValue("")
	if text == "" {
		return m, nil
	}

	if m.awaitingConfirm {
		yes := strings.HasPrefix(strings.ToLower(text), "y")
		m.lines = append(m.lines, styleUser.Render("you: ")+text)
		m.awaitingConfirm = false
		_ = m.conn.WriteJSON(wire.Envelope{Event: wire.EventUserConfirmation, Payload: map[string]any{"confirmed": yes}})
		m.vp.SetContent(m.render())
		return m, nil
	}

	m.lines = append(m.lines, styleUser.Render("you: ")+text)
	m.waiting = true
	_ = m.conn.WriteJSON(wire.Envelope{Event: wire.EventStartTask, Payload: map[string]any{"prompt": text}})
	m.vp.SetContent(m.render())
	m.vp.GotoBottom()
	return m, nil
}

func (m *chatModel) onEvent(env wire.Envelope) {
	switch env.Event {
	case wire.EventLogMessage:
		kind, _ := env.Payload["type"].(string)
		data := fmt.Sprintf("%v", env.Payload["data"])
		switch kind {
		case wire.LogTypeFinalAnswer:
			m.waiting = false
			m.lines = append(m.lines, styleFinal.Render("loom: ")+m.markdown(data))
		case wire.LogTypeSystemConfirm, wire.LogTypeSystemConfirmReplayed:
			m.lines = append(m.lines, styleInfo.Render(data))
		default:
			m.lines = append(m.lines, styleInfo.Render(data))
		}
	case wire.EventToolLog:
		action, _ := env.Payload["action"].(string)
		m.lines = append(m.lines, styleInfo.Render(fmt.Sprintf("tool: %s -> %v", action, env.Payload["result"])))
	case wire.EventRequestUserConfirmation:
		prompt, _ := env.Payload["prompt"].(string)
		m.awaitingConfirm = true
		m.confirmPrompt = prompt
		m.lines = append(m.lines, styleConfirm.Render("confirm: "+prompt+" [y/n]"))
	case wire.EventSessionListUpdate:
		m.lines = append(m.lines, styleInfo.Render(fmt.Sprintf("sessions: %v", env.Payload["sessions"])))
	case wire.EventSessionNameUpdate:
		m.lines = append(m.lines, styleInfo.Render(fmt.Sprintf("session name: %v", env.Payload["name"])))
	case wire.EventDisplayUserPrompt:
		// The server echoes this back once a task starts (and when
		// replaying a loaded session); loomctl already rendered the
		// user's own line on submit, so this event is not rendered; replayed
		// prompts from a loaded session are not rendered either.
	case wire.EventClearChatHistory:
		m.lines = nil
	}
}

func (m *chatModel) markdown(text string) string {
	if m.rend == nil {
		return text
	}
	out, err := m.rend.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m *chatModel) render() string {
	return strings.Join(m.lines, "\n")
}

func (m *chatModel) View() string {
	if !m.ready {
		return "initializing...\n"
	}

	status := ""
	if m.waiting {
		status = m.spin.View() + " waiting for loom..."
	}
	ts := time.Now().Format("15:04:05")
	return fmt.Sprintf("%s\n%s\n%s  [%s]\n", m.vp.View(), m.ti.View(), status, ts)
}
