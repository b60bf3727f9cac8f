package transport

import (
	"context"
	"sync"
)

// Streamer opens push streams for a conversation.
//
// OpenStream connects and completes the subscribe handshake before returning. The
// returned Stream is bound to ctx: cancelling it unblocks a pending Recv.
type Streamer interface {
	OpenStream(ctx context.Context, convID string) (Stream, error)
}

// Stream is a non-restartable sequence of push frames. Once Recv returns an error the
// stream is finished and a new one has to be opened.
type Stream interface {
	Recv() (Frame, error)
	Close() error
}

// closeOnDone runs closeFn when ctx is cancelled, unless stop is closed first.
func closeOnDone(ctx context.Context, stop <-chan struct{}, closeFn func()) {
	go func() {
		select {
		case <-ctx.Done():
			closeFn()
		case <-stop:
		}
	}()
}

type closer struct {
	once sync.Once
	stop chan struct{}
}

func newCloser() *closer {
	return &closer{stop: make(chan struct{})}
}

func (c *closer) do(fn func()) {
	c.once.Do(func() {
		close(c.stop)
		fn()
	})
}
