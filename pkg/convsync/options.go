package convsync

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/persistence/chatstore"
)

const (
	DefaultPullInterval = time.Second
	DefaultRetryDelay   = 5 * time.Second
	DefaultPageSize     = 10
)

// Listener is the display side of a session. Render is called for every message that
// enters the log, in log order, and for local echoes of sent messages. Notice reports
// non-fatal transport events. Calls may come from several goroutines.
type Listener interface {
	Render(user, body string)
	Notice(category, detail string)
}

type nopListener struct{}

func (nopListener) Render(string, string) {}
func (nopListener) Notice(string, string) {}

type Option func(*Engine)

func WithPullInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pullInterval = d
		}
	}
}

func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithReconnectBackOff sets the delay policy between push reconnects. The policy is
// reset after every successful connect.
func WithReconnectBackOff(b backoff.BackOff) Option {
	return func(e *Engine) {
		if b != nil {
			e.backOff = b
		}
	}
}

func WithListener(l Listener) Option {
	return func(e *Engine) {
		if l != nil {
			e.listener = l
		}
	}
}

// WithArchive writes every inserted message through to a durable archive.
func WithArchive(a chatstore.Archive) Option {
	return func(e *Engine) {
		e.archive = a
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithRequestTimeout bounds each fetch and send issued by the engine.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.requestTimeout = d
	}
}

// ConstantBackOff retries at a fixed delay forever.
func ConstantBackOff(d time.Duration) backoff.BackOff {
	if d <= 0 {
		d = DefaultRetryDelay
	}
	return backoff.NewConstantBackOff(d)
}

// ExponentialBackOff grows from initial to max and never gives up.
func ExponentialBackOff(initial, max time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if initial > 0 {
		b.InitialInterval = initial
	}
	if max > 0 {
		b.MaxInterval = max
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
