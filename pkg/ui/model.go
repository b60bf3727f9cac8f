package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/convsync"
	"github.com/go-go-golems/chatsync/pkg/events"
)

const requestTimeout = 10 * time.Second

// Session is the part of the sync engine the UI drives.
type Session interface {
	Send(ctx context.Context, user, body string) error
	LoadOlder(ctx context.Context) ([]chat.Message, error)
	HasOlder() bool
	State() convsync.SubscriptionState
}

type sendResultMsg struct{ err error }

type olderLoadedMsg struct {
	msgs []chat.Message
	err  error
}

// Model is the interactive chat view: a scrolling transcript above an input line.
type Model struct {
	session Session
	user    string
	convID  string
	events  <-chan events.Event
	fmt     Formatter

	viewport viewport.Model
	input    textinput.Model
	lines    []string
	status   string
	ready    bool
}

func NewModel(session Session, user, convID string, evCh <-chan events.Event, f Formatter) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message, enter to send, ctrl+o for older messages"
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.Style = lipgloss.NewStyle()
	return Model{
		session:  session,
		user:     user,
		convID:   convID,
		events:   evCh,
		fmt:      f,
		viewport: vp,
		input:    ti,
		status:   "connecting",
	}
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return e
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		// header and input take one line each plus a separator
		h := ev.Height - 3
		if h < 1 {
			h = 1
		}
		m.viewport.Width = ev.Width
		m.viewport.Height = h
		m.input.Width = ev.Width - len(m.input.Prompt) - 1
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch ev.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			body := strings.TrimSpace(m.input.Value())
			if body == "" {
				return m, nil
			}
			m.input.Reset()
			return m, m.sendCmd(body)
		case tea.KeyCtrlO:
			if !m.session.HasOlder() {
				m.status = "no older messages"
				return m, nil
			}
			return m, m.loadOlderCmd()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case events.Event:
		m.applyEvent(ev)
		return m, waitForEvent(m.events)

	case sendResultMsg:
		if ev.err != nil {
			m.status = errorStyle.Render("send failed: " + ev.err.Error())
		}
		return m, nil

	case olderLoadedMsg:
		if ev.err != nil {
			m.status = errorStyle.Render("loading older messages failed: " + ev.err.Error())
			return m, nil
		}
		older := make([]string, 0, len(ev.msgs)+len(m.lines))
		for _, om := range ev.msgs {
			older = append(older, m.fmt.Message(om.User, om.Body))
		}
		m.lines = append(older, m.lines...)
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoTop()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyEvent(ev events.Event) {
	switch ev.Type {
	case events.EventRender:
		m.lines = append(m.lines, m.fmt.Message(ev.User, ev.Body))
	case events.EventNotice:
		m.lines = append(m.lines, m.fmt.Notice(ev.Category, ev.Detail))
	}
	m.refresh()
}

func (m *Model) refresh() {
	st := m.session.State()
	switch {
	case st.Connected:
		m.status = "live"
	case st.Phase == convsync.PushIdle:
		m.status = "polling"
	default:
		m.status = string(st.Phase)
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) sendCmd(body string) tea.Cmd {
	session, user := m.session, m.user
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return sendResultMsg{err: session.Send(ctx, user, body)}
	}
}

func (m Model) loadOlderCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		msgs, err := session.LoadOlder(ctx)
		return olderLoadedMsg{msgs: msgs, err: err}
	}
}

func (m Model) View() string {
	header := headerStyle.Render(m.convID) + "  " + m.user + "  [" + m.status + "]"
	return header + "\n" + m.viewport.View() + "\n\n" + m.input.View()
}
