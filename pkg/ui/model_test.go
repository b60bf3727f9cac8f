package ui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/convsync"
	"github.com/go-go-golems/chatsync/pkg/events"
)

type fakeSession struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	older   []chat.Message
	state   convsync.SubscriptionState
}

func (s *fakeSession) Send(_ context.Context, user, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, user+":"+body)
	return s.sendErr
}

func (s *fakeSession) LoadOlder(context.Context) ([]chat.Message, error) {
	older := s.older
	s.older = nil
	return older, nil
}

func (s *fakeSession) HasOlder() bool { return len(s.older) > 0 }

func (s *fakeSession) State() convsync.SubscriptionState { return s.state }

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModel_RendersEvents(t *testing.T) {
	s := &fakeSession{state: convsync.SubscriptionState{Connected: true, Phase: convsync.PushConnected}}
	m := NewModel(s, "carol", "abc", make(chan events.Event), Formatter{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 10})

	m, cmd := update(t, m, events.Event{Type: events.EventRender, User: "alice", Body: "hi"})
	require.NotNil(t, cmd)
	m, _ = update(t, m, events.Event{Type: events.EventNotice, Category: chat.NoticeDisconnected, Detail: "stream closed"})

	view := m.View()
	require.Contains(t, view, "alice: hi")
	require.Contains(t, view, "-- disconnected: stream closed")
	require.Contains(t, view, "[live]")
}

func TestModel_EnterSends(t *testing.T) {
	s := &fakeSession{}
	m := NewModel(s, "carol", "abc", make(chan events.Event), Formatter{})
	m.input.SetValue("  hello  ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Empty(t, m.input.Value())
	res := cmd()
	require.Equal(t, sendResultMsg{}, res)
	require.Equal(t, []string{"carol:hello"}, s.sent)

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)

	s.sendErr = errors.New("503")
	m.input.SetValue("again")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())
	require.Contains(t, m.status, "send failed")
}

func TestModel_LoadOlderPrepends(t *testing.T) {
	s := &fakeSession{older: []chat.Message{{ID: "1", User: "alice", Body: "first"}}}
	m := NewModel(s, "carol", "abc", make(chan events.Event), Formatter{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 10})
	m, _ = update(t, m, events.Event{Type: events.EventRender, User: "bob", Body: "second"})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.Equal(t, []string{"alice: first", "bob: second"}, m.lines)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	require.Nil(t, cmd)
	require.Equal(t, "no older messages", m.status)
}

func TestModel_WaitForEvent(t *testing.T) {
	ch := make(chan events.Event, 1)
	ch <- events.Event{Type: events.EventRender, User: "a", Body: "b"}
	require.Equal(t, events.Event{Type: events.EventRender, User: "a", Body: "b"}, waitForEvent(ch)())
	close(ch)
	require.Nil(t, waitForEvent(ch)())
}

func TestFormatter(t *testing.T) {
	plain := Formatter{}
	require.Equal(t, "alice: hi", plain.Message("alice", "hi"))
	require.Equal(t, "-- connected", plain.Notice(chat.NoticeConnected, ""))

	md := Formatter{Markdown: true}
	require.Contains(t, md.Message("alice", "**bold** text"), "bold")

	colored := Formatter{Color: true}
	require.Contains(t, colored.Message(convsync.SentPrefix+"carol", "hello"), "hello")
}

func TestLinePrinterAndRunLines(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrinter(&out, Formatter{})
	p.Render("alice", "hi")
	p.Notice(chat.NoticeFetchError, "boom")
	require.Equal(t, "alice: hi\n-- fetch-error: boom\n", out.String())

	var sent []string
	err := RunLines(context.Background(), strings.NewReader("one\n\n  two \n"), func(_ context.Context, body string) error {
		sent = append(sent, body)
		if body == "one" {
			return errors.New("ignored")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, sent)
}

func TestRunLines_StopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunLines(ctx, r, func(context.Context, string) error { return nil })
	}()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunLines did not return after cancel")
	}
}
