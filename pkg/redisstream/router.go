package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// BuildPublisher returns a Redis Streams publisher on client.
func BuildPublisher(client redis.UniversalClient) (message.Publisher, error) {
	if client == nil {
		return nil, errors.New("redis publisher: nil client")
	}
	return rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, NewWatermillLogger(log.Logger))
}

// BuildGroupSubscriber returns a Redis Streams subscriber bound to the given consumer group/name.
func BuildGroupSubscriber(client redis.UniversalClient, group, consumer string) (message.Subscriber, error) {
	if client == nil {
		return nil, errors.New("redis subscriber: nil client")
	}
	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      consumer,
	}, NewWatermillLogger(log.Logger))
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP: group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrap(err, "create consumer group")
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
