package convsync

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/transport"
)

// pushLoop keeps a stream open until ctx is done:
// Connecting -> Connected -> Disconnected -> (delay) -> Connecting.
func (e *Engine) pushLoop(ctx context.Context) error {
	e.backOff.Reset()
	for {
		e.setPushPhase(PushConnecting, false)
		st, err := e.streamer.OpenStream(ctx, e.convID)
		if err == nil {
			e.backOff.Reset()
			e.setPushPhase(PushConnected, true)
			e.metrics.Connected(true)
			e.log.Info().Msg("stream connected")
			e.listener.Notice(chat.NoticeConnected, transport.ChannelForConversation(e.convID))

			err = e.consume(ctx, st)
			_ = st.Close()
			e.metrics.Connected(false)
		}
		if ctx.Err() != nil {
			e.setPushPhase(PushDisconnected, false)
			return nil
		}

		delay := e.nextDelay()
		detail := describeStreamEnd(err)
		e.mu.Lock()
		e.state.Phase = PushDisconnected
		e.state.Connected = false
		e.state.RetryDelay = delay
		e.state.LastError = detail
		e.mu.Unlock()
		e.log.Warn().Err(err).Dur("retry_delay", delay).Msg("stream disconnected")
		if chat.IsProtocol(err) {
			e.listener.Notice(chat.NoticeStreamError, err.Error())
		}
		e.listener.Notice(chat.NoticeDisconnected, detail)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		e.mu.Lock()
		e.state.Reconnects++
		e.mu.Unlock()
		e.metrics.Reconnect()
	}
}

// consume merges frames until the stream ends. Frames without an id cannot be
// deduplicated, so they trigger a pull that fetches the message with its id.
func (e *Engine) consume(ctx context.Context, st transport.Stream) error {
	for {
		f, err := st.Recv()
		if err != nil {
			return err
		}
		if !f.HasID() {
			e.log.Debug().Str("user", f.User).Msg("push frame without id, kicking pull")
			e.kickPull()
			continue
		}
		e.mergeNewer(ctx, metrics.SourcePush, []chat.Message{f.ToMessage(e.convID)})
	}
}

func (e *Engine) nextDelay() time.Duration {
	d := e.backOff.NextBackOff()
	if d == backoff.Stop || d < 0 {
		return DefaultRetryDelay
	}
	return d
}

func (e *Engine) setPushPhase(p PushPhase, connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Phase = p
	e.state.Connected = connected
}

func describeStreamEnd(err error) string {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return "stream closed"
	default:
		return err.Error()
	}
}
