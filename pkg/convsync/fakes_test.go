package convsync

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/transport"
)

type fakeClient struct {
	mu        sync.Mutex
	pageFn    func(ctx context.Context, token string) (*transport.Page, error)
	sinceFn   func(ctx context.Context, since string) ([]chat.Message, error)
	sendFn    func(ctx context.Context, user, body string) error
	sinceArgs []string
	sends     int
}

func (c *fakeClient) FetchPage(ctx context.Context, convID string, pageSize int, nextToken string) (*transport.Page, error) {
	if c.pageFn == nil {
		return &transport.Page{}, nil
	}
	return c.pageFn(ctx, nextToken)
}

func (c *fakeClient) FetchSince(ctx context.Context, convID string, since string) ([]chat.Message, error) {
	c.mu.Lock()
	c.sinceArgs = append(c.sinceArgs, since)
	fn := c.sinceFn
	c.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, since)
}

func (c *fakeClient) SendMessage(ctx context.Context, convID, user, body string) error {
	c.mu.Lock()
	c.sends++
	c.mu.Unlock()
	if c.sendFn == nil {
		return nil
	}
	return c.sendFn(ctx, user, body)
}

func (c *fakeClient) sinceCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sinceArgs)
}

// fakeStream delivers frames until end is closed or its context is done.
type fakeStream struct {
	ctx    context.Context
	frames chan transport.Frame
	end    chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		frames: make(chan transport.Frame, 16),
		end:    make(chan struct{}),
	}
}

func (s *fakeStream) Recv() (transport.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.end:
		return transport.Frame{}, io.EOF
	case <-s.ctx.Done():
		return transport.Frame{}, s.ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.disconnect()
	return nil
}

func (s *fakeStream) disconnect() {
	s.once.Do(func() { close(s.end) })
}

// fakeStreamer hands out the queued streams in order, then blocks until ctx is done.
type fakeStreamer struct {
	mu      sync.Mutex
	streams []*fakeStream
	opened  int
	failN   int
}

func (s *fakeStreamer) OpenStream(ctx context.Context, convID string) (transport.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return nil, &chat.TransportError{Op: "dial", Err: io.ErrUnexpectedEOF}
	}
	if s.opened >= len(s.streams) {
		st := newFakeStream()
		st.ctx = ctx
		s.opened++
		return st, nil
	}
	st := s.streams[s.opened]
	st.ctx = ctx
	s.opened++
	return st, nil
}

func (s *fakeStreamer) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

type recListener struct {
	mu      sync.Mutex
	renders []string
	notices []string
}

func (l *recListener) Render(user, body string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renders = append(l.renders, user+": "+body)
}

func (l *recListener) Notice(category, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, category)
}

func (l *recListener) rendered() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.renders...)
}

func (l *recListener) hasNotice(category string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.notices {
		if n == category {
			return true
		}
	}
	return false
}

func msg(id, user, body string) chat.Message {
	return chat.Message{ID: id, ConversationID: "abc", User: user, Body: body}
}

func ids(msgs []chat.Message) string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return strings.Join(out, ",")
}

func countID(msgs []chat.Message, id string) int {
	n := 0
	for _, m := range msgs {
		if m.ID == id {
			n++
		}
	}
	return n
}
