package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// notifierServer accepts one subscription per connection, reports it on subs and
// then writes every payload from frames.
func notifierServer(t *testing.T, subs chan<- SubscribeRequest, frames <-chan string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		var req SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subs <- req
		for {
			select {
			case f, ok := <-frames:
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketStreamer_SubscribesAndDecodes(t *testing.T) {
	subs := make(chan SubscribeRequest, 1)
	frames := make(chan string, 4)
	url := notifierServer(t, subs, frames)

	s, err := NewWebSocketStreamer(url)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := s.OpenStream(ctx, "abc123123")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	select {
	case req := <-subs:
		require.Equal(t, []string{"conversation:abc123123"}, req.Channels)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe frame")
	}

	frames <- `{"user":"bob","message":"yo"}`
	frames <- `{"message_id":"42","user":"carol","message":"hello"}`

	f, err := st.Recv()
	require.NoError(t, err)
	require.False(t, f.HasID())
	require.Equal(t, chat.Message{ConversationID: "abc123123", User: "bob", Body: "yo"}, f.ToMessage("abc123123"))

	f, err = st.Recv()
	require.NoError(t, err)
	require.True(t, f.HasID())
	require.Equal(t, "42", f.ToMessage("abc123123").ID)

	close(frames)
	_, err = st.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestWebSocketStreamer_ServerErrorFrame(t *testing.T) {
	subs := make(chan SubscribeRequest, 1)
	frames := make(chan string, 1)
	url := notifierServer(t, subs, frames)

	s, err := NewWebSocketStreamer(url)
	require.NoError(t, err)
	st, err := s.OpenStream(context.Background(), "abc")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	frames <- `{"error":"no channels"}`
	_, err = st.Recv()
	require.True(t, chat.IsProtocol(err))
}

func TestWebSocketStreamer_CancelUnblocksRecv(t *testing.T) {
	subs := make(chan SubscribeRequest, 1)
	frames := make(chan string)
	url := notifierServer(t, subs, frames)

	s, err := NewWebSocketStreamer(url)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	st, err := s.OpenStream(ctx, "abc")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := st.Recv()
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recv did not return after cancel")
	}
}

func TestWebSocketStreamer_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	defer srv.Close()

	s, err := NewWebSocketStreamer(url)
	require.NoError(t, err)
	_, err = s.OpenStream(context.Background(), "abc")
	require.True(t, chat.IsTransport(err))

	_, err = NewWebSocketStreamer("http://example.com")
	require.Error(t, err)
}

func TestFrame_NumericMessageID(t *testing.T) {
	f, err := decodeFrame("test", []byte(`{"message_id":17,"user":"u","message":"m"}`))
	require.NoError(t, err)
	require.Equal(t, "17", f.ToMessage("c").ID)
}
