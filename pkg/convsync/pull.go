package convsync

import (
	"context"
	"time"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/metrics"
)

// pullLoop refreshes on every tick and whenever a pull is kicked. Fetches never overlap.
func (e *Engine) pullLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.pullInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-e.kick:
		}
		e.pullOnce(ctx)
	}
}

// kickPull requests an immediate pull without blocking. Kicks coalesce.
func (e *Engine) kickPull() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) pullOnce(ctx context.Context) {
	reqCtx, cancel := e.requestContext(ctx)
	defer cancel()

	var (
		msgs []chat.Message
		err  error
	)
	since, ok := e.store.NewestWatermark()
	if ok {
		msgs, err = e.client.FetchSince(reqCtx, e.convID, since)
	} else {
		// nothing to refresh from yet, take the newest page
		msgs, err = e.fetchFirstPage(reqCtx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		kind := "transport"
		if chat.IsProtocol(err) {
			kind = "protocol"
		}
		e.metrics.FetchError(kind)
		e.log.Warn().Err(err).Str("since", since).Msg("pull failed")
		e.mu.Lock()
		e.state.LastError = err.Error()
		e.mu.Unlock()
		e.listener.Notice(chat.NoticeFetchError, err.Error())
		return
	}
	e.mergeNewer(ctx, metrics.SourcePull, chat.Reversed(msgs))
}

func (e *Engine) fetchFirstPage(ctx context.Context) ([]chat.Message, error) {
	page, err := e.client.FetchPage(ctx, e.convID, e.pageSize, "")
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.nextToken == "" {
		e.nextToken = page.NextToken
	}
	e.mu.Unlock()
	return page.Messages, nil
}
