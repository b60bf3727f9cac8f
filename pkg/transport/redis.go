package transport

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// RedisStreamer subscribes straight to the Redis pub/sub channel the notifier relays
// from, skipping the websocket hop. The SUBSCRIBE confirmation is the handshake.
type RedisStreamer struct {
	client redis.UniversalClient
}

var _ Streamer = &RedisStreamer{}

func NewRedisStreamer(client redis.UniversalClient) (*RedisStreamer, error) {
	if client == nil {
		return nil, errors.New("redis streamer: nil client")
	}
	return &RedisStreamer{client: client}, nil
}

func (s *RedisStreamer) OpenStream(ctx context.Context, convID string) (Stream, error) {
	channel := ChannelForConversation(convID)
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &chat.TransportError{Op: "subscribe", Err: err}
	}
	st := &redisStream{
		ctx:    ctx,
		ps:     ps,
		closer: newCloser(),
	}
	closeOnDone(ctx, st.closer.stop, func() { _ = st.Close() })
	log.Debug().Str("component", "transport").Str("conv_id", convID).Str("channel", channel).Msg("redis stream subscribed")
	return st, nil
}

type redisStream struct {
	ctx    context.Context
	ps     *redis.PubSub
	closer *closer
}

func (s *redisStream) Recv() (Frame, error) {
	msg, err := s.ps.ReceiveMessage(s.ctx)
	if err != nil {
		return Frame{}, &chat.TransportError{Op: "stream recv", Err: err}
	}
	return decodeFrame("stream recv", []byte(msg.Payload))
}

func (s *redisStream) Close() error {
	var err error
	s.closer.do(func() {
		err = s.ps.Close()
	})
	return err
}
