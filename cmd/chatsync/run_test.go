package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/events"
)

func TestForwardEvents_ReleasesPublisherAfterCancel(t *testing.T) {
	bus := events.NewMemoryBus(0)
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscriber(ctx, "abc")
	require.NoError(t, err)
	// nobody reads evCh after the first event, as when the UI has quit
	evCh := make(chan events.Event, 1)
	coord := events.NewCoordinator("abc", sub, forwardEvents(ctx, evCh))
	require.NoError(t, coord.Start(ctx))
	defer coord.Close()

	listener := events.NewBusListener(bus, "abc")
	listener.Render("alice", "first")
	ev := <-evCh
	require.Equal(t, "first", ev.Body)

	listener.Render("alice", "second")
	done := make(chan struct{})
	go func() {
		listener.Render("alice", "third")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("publish returned while the handler was blocked")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish still blocked after cancel")
	}
}
