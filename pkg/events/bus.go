package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/redisstream"
)

// Bus carries engine events to subscribers over watermill, either in-process or
// through Redis Streams.
type Bus struct {
	publisher message.Publisher
	subscribe func(ctx context.Context, convID string) (message.Subscriber, error)
	closers   []func() error
}

// NewMemoryBus uses an in-process gochannel pubsub. Publish waits for subscribers to
// ack, which keeps events in publish order.
func NewMemoryBus(buffer int64) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	gc := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            buffer,
		BlockPublishUntilSubscriberAck: true,
	}, redisstream.NewWatermillLogger(log.Logger))
	return &Bus{
		publisher: gc,
		subscribe: func(context.Context, string) (message.Subscriber, error) {
			return nopCloseSubscriber{gc}, nil
		},
		closers: []func() error{gc.Close},
	}
}

// NewRedisBus publishes to a Redis stream per conversation. Each subscriber joins the
// configured consumer group starting at the tail.
func NewRedisBus(client redis.UniversalClient, s redisstream.Settings) (*Bus, error) {
	pub, err := redisstream.BuildPublisher(client)
	if err != nil {
		return nil, err
	}
	return &Bus{
		publisher: pub,
		subscribe: func(ctx context.Context, convID string) (message.Subscriber, error) {
			if err := redisstream.EnsureGroupAtTail(ctx, client, TopicForConv(convID), s.Group); err != nil {
				return nil, err
			}
			return redisstream.BuildGroupSubscriber(client, s.Group, s.Consumer+":"+convID)
		},
		closers: []func() error{pub.Close},
	}, nil
}

func (b *Bus) Publish(ev Event) error {
	if b == nil || b.publisher == nil {
		return errors.New("event bus: not initialized")
	}
	payload, err := ev.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("type", string(ev.Type))
	return b.publisher.Publish(TopicForConv(ev.ConvID), msg)
}

// Subscriber builds a subscriber for convID. The caller closes it.
func (b *Bus) Subscriber(ctx context.Context, convID string) (message.Subscriber, error) {
	if b == nil || b.subscribe == nil {
		return nil, errors.New("event bus: not initialized")
	}
	if convID == "" {
		return nil, errors.New("event bus: empty conversation id")
	}
	return b.subscribe(ctx, convID)
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// nopCloseSubscriber shares the bus-owned gochannel; closing it must not close the bus.
type nopCloseSubscriber struct {
	message.Subscriber
}

func (nopCloseSubscriber) Close() error { return nil }
