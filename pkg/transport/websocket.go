package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// WebSocketStreamer connects to the notification endpoint, e.g. ws://localhost:9004/api/v1/ws.
type WebSocketStreamer struct {
	url    string
	token  string
	header http.Header
	dialer *websocket.Dialer
}

var _ Streamer = &WebSocketStreamer{}

type WebSocketOption func(*WebSocketStreamer)

func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(s *WebSocketStreamer) {
		if d != nil {
			s.dialer = d
		}
	}
}

func WithHeader(h http.Header) WebSocketOption {
	return func(s *WebSocketStreamer) {
		s.header = h.Clone()
	}
}

// WithToken is forwarded in the subscribe frame.
func WithToken(token string) WebSocketOption {
	return func(s *WebSocketStreamer) {
		s.token = token
	}
}

func NewWebSocketStreamer(url string, opts ...WebSocketOption) (*WebSocketStreamer, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return nil, errors.Errorf("websocket streamer: url must start with ws:// or wss://, got %q", url)
	}
	s := &WebSocketStreamer{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *WebSocketStreamer) OpenStream(ctx context.Context, convID string) (Stream, error) {
	const op = "open stream"
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		te := &chat.TransportError{Op: op, Err: err}
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			te.Status = resp.StatusCode
		}
		return nil, te
	}

	sub := SubscribeRequest{
		Token:    s.token,
		Channels: []string{ChannelForConversation(convID)},
	}
	if err := conn.WriteJSON(&sub); err != nil {
		_ = conn.Close()
		return nil, &chat.TransportError{Op: "subscribe", Err: err}
	}

	st := &wsStream{
		conn:   conn,
		convID: convID,
		closer: newCloser(),
	}
	closeOnDone(ctx, st.closer.stop, func() { _ = st.Close() })
	log.Debug().Str("component", "transport").Str("conv_id", convID).Str("url", s.url).Msg("websocket stream subscribed")
	return st, nil
}

type wsStream struct {
	conn   *websocket.Conn
	convID string
	closer *closer
}

func (s *wsStream) Recv() (Frame, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Frame{}, io.EOF
			}
			return Frame{}, &chat.TransportError{Op: "stream recv", Err: err}
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		return decodeFrame("stream recv", data)
	}
}

func (s *wsStream) Close() error {
	var err error
	s.closer.do(func() {
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
