package events

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Cursor struct {
	StreamID string
	Seq      uint64
}

// Coordinator owns the subscriber of one conversation topic and dispatches decoded
// events to the handler in order.
type Coordinator struct {
	convID     string
	subscriber message.Subscriber
	onEvent    func(Event, Cursor)

	seq atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

func NewCoordinator(convID string, subscriber message.Subscriber, onEvent func(Event, Cursor)) *Coordinator {
	return &Coordinator{
		convID:     convID,
		subscriber: subscriber,
		onEvent:    onEvent,
	}
}

// Start subscribes before returning, so events published afterwards are not missed.
func (c *Coordinator) Start(ctx context.Context) error {
	if c == nil || c.subscriber == nil {
		return errors.New("coordinator: no subscriber")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := c.subscriber.Subscribe(runCtx, TopicForConv(c.convID))
	if err != nil {
		cancel()
		return errors.Wrap(err, "coordinator: subscribe")
	}
	c.cancel = cancel
	c.running = true
	c.done = make(chan struct{})
	go c.consume(ch, c.done)
	return nil
}

func (c *Coordinator) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = nil
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Coordinator) Close() {
	if c == nil {
		return
	}
	c.Stop()
	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			log.Warn().Err(err).Str("component", "events").Str("conv_id", c.convID).Msg("coordinator: subscriber close failed")
		}
	}
}

func (c *Coordinator) IsRunning() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) consume(ch <-chan *message.Message, done chan struct{}) {
	defer close(done)
	log.Debug().Str("component", "events").Str("conv_id", c.convID).Msg("coordinator: started")
	for msg := range ch {
		ev, err := UnmarshalEvent(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("component", "events").Str("conv_id", c.convID).Msg("coordinator: failed to decode event")
			msg.Ack()
			continue
		}
		streamID := extractStreamID(msg)
		cur := Cursor{StreamID: streamID, Seq: c.nextSeq(streamID)}
		if c.onEvent != nil {
			c.onEvent(ev, cur)
		}
		msg.Ack()
	}
	log.Debug().Str("component", "events").Str("conv_id", c.convID).Msg("coordinator: stopped")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// nextSeq is monotonic. Redis stream ids seed it when present, wall time otherwise.
func (c *Coordinator) nextSeq(streamID string) uint64 {
	base := uint64(time.Now().UnixMilli()) * 1_000_000
	if derived, ok := deriveSeqFromStreamID(streamID); ok {
		base = derived
	}
	for {
		current := c.seq.Load()
		next := base
		if next <= current {
			next = current + 1
		}
		if c.seq.CompareAndSwap(current, next) {
			return next
		}
	}
}

func extractStreamID(msg *message.Message) string {
	if msg == nil || msg.Metadata == nil {
		return ""
	}
	for _, k := range []string{"xid", "redis_xid"} {
		if v := msg.Metadata.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func deriveSeqFromStreamID(streamID string) (uint64, bool) {
	parts := strings.Split(streamID, "-")
	if len(parts) != 2 {
		return 0, false
	}
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	sub, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms*1_000_000 + sub, true
}
