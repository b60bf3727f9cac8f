package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/redisstream"
)

func newRedisBus(t *testing.T) (*Bus, *miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	bus, err := NewRedisBus(rdb, redisstream.Settings{Addr: mr.Addr(), Group: "ui", Consumer: "ui-1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, mr, rdb
}

func TestRedisBus_PublishAppendsToConversationStream(t *testing.T) {
	bus, mr, _ := newRedisBus(t)

	require.NoError(t, bus.Publish(Event{Type: EventRender, ConvID: "abc", User: "alice", Body: "hi"}))
	require.NoError(t, bus.Publish(Event{Type: EventNotice, ConvID: "abc", Category: "connected"}))

	entries, err := mr.Stream(TopicForConv("abc"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	values := map[string]string{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		values[entries[0].Values[i]] = entries[0].Values[i+1]
	}
	ev, err := UnmarshalEvent([]byte(values["payload"]))
	require.NoError(t, err)
	require.Equal(t, "alice", ev.User)
	require.Equal(t, "hi", ev.Body)
}

func TestRedisBus_SubscriberCreatesGroupAtTail(t *testing.T) {
	bus, _, rdb := newRedisBus(t)
	ctx := context.Background()

	// published before anyone subscribed, so a group at the tail skips it
	require.NoError(t, bus.Publish(Event{Type: EventRender, ConvID: "abc", User: "old", Body: "before"}))

	sub, err := bus.Subscriber(ctx, "abc")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	err = rdb.XGroupCreate(ctx, TopicForConv("abc"), "ui", "$").Err()
	require.ErrorContains(t, err, "BUSYGROUP")

	_, err = rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "ui",
		Consumer: "check",
		Streams:  []string{TopicForConv("abc"), ">"},
		Block:    -1,
	}).Result()
	require.ErrorIs(t, err, redis.Nil)

	// a second subscriber reuses the existing group
	sub2, err := bus.Subscriber(ctx, "abc")
	require.NoError(t, err)
	require.NoError(t, sub2.Close())
}

func TestRedisBus_CoordinatorRoundTrip(t *testing.T) {
	bus, _, _ := newRedisBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscriber(ctx, "abc")
	require.NoError(t, err)

	rec := &recorder{}
	c := NewCoordinator("abc", sub, rec.on)
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	l := NewBusListener(bus, "abc")
	l.Render("alice", "hi")
	l.Render("bob", "yo")

	require.Eventually(t, func() bool { return rec.len() == 2 }, 5*time.Second, 20*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, "hi", rec.evs[0].Body)
	require.Equal(t, "yo", rec.evs[1].Body)
}

func TestRedisBus_UnreachableServer(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer func() { _ = rdb.Close() }()

	bus, err := NewRedisBus(rdb, redisstream.DefaultSettings())
	require.NoError(t, err)
	defer func() { _ = bus.Close() }()

	_, err = bus.Subscriber(context.Background(), "abc")
	require.Error(t, err)
	require.Error(t, bus.Publish(Event{Type: EventRender, ConvID: "abc", User: "a", Body: "b"}))
}
