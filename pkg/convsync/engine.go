package convsync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/persistence/chatstore"
	"github.com/go-go-golems/chatsync/pkg/transport"
)

// SentPrefix marks the local echo of a message the user just sent.
const SentPrefix = "(sent) "

var ErrStopped = errors.New("sync engine stopped")

// Engine keeps one conversation's MessageStore current. After seeding it runs a pull
// loop (periodic refresh since the newest known id) and, when a streamer is set, a
// push loop (live stream with reconnect). Both loops merge into the same store, which
// drops duplicates, so overlapping deliveries are harmless.
type Engine struct {
	convID   string
	client   transport.Client
	streamer transport.Streamer
	store    *chatstore.MessageStore

	listener       Listener
	archive        chatstore.Archive
	metrics        *metrics.Collector
	log            zerolog.Logger
	pullInterval   time.Duration
	pageSize       int
	requestTimeout time.Duration
	backOff        backoff.BackOff

	// mergeMu orders store writes with their renders, so renders follow log order.
	mergeMu sync.Mutex
	kick    chan struct{}

	mu        sync.Mutex
	phase     Phase
	cancel    context.CancelFunc
	done      chan struct{}
	state     SubscriptionState
	nextToken string
}

// New builds an engine for convID. streamer may be nil, which disables the push loop.
func New(convID string, client transport.Client, streamer transport.Streamer, store *chatstore.MessageStore, opts ...Option) (*Engine, error) {
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return nil, errors.New("sync engine: empty conversation id")
	}
	if client == nil {
		return nil, errors.New("sync engine: nil client")
	}
	if store == nil {
		store = chatstore.NewMessageStore()
	}
	e := &Engine{
		convID:       convID,
		client:       client,
		streamer:     streamer,
		store:        store,
		listener:     nopListener{},
		log:          log.Logger,
		pullInterval: DefaultPullInterval,
		pageSize:     DefaultPageSize,
		kick:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.backOff == nil {
		e.backOff = ConstantBackOff(DefaultRetryDelay)
	}
	e.log = e.log.With().Str("component", "convsync").Str("conv_id", convID).Logger()
	return e, nil
}

func (e *Engine) ConversationID() string { return e.convID }

// Start seeds the store from the newest page and launches the sync loops.
// It returns a *chat.SeedError if seeding fails, in which case the engine is stopped.
// The loops run until Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	if e.phase != PhaseIdle {
		phase := e.phase
		e.mu.Unlock()
		if phase == PhaseStopped {
			return ErrStopped
		}
		return errors.New("sync engine: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.phase = PhaseSeeding
	e.cancel = cancel
	e.mu.Unlock()

	if err := e.seed(runCtx); err != nil {
		cancel()
		e.mu.Lock()
		e.phase = PhaseStopped
		e.mu.Unlock()
		e.log.Error().Err(err).Msg("seeding failed")
		return &chat.SeedError{Cause: err}
	}

	e.mu.Lock()
	if e.phase != PhaseSeeding {
		// Stop won the race after the fetch completed
		e.mu.Unlock()
		return &chat.SeedError{Cause: context.Canceled}
	}
	e.phase = PhaseRunning
	e.state.RetryDelay = DefaultRetryDelay
	if e.streamer == nil {
		e.state.Phase = PushIdle
	}
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error { return e.pullLoop(egCtx) })
	if e.streamer != nil {
		eg.Go(func() error { return e.pushLoop(egCtx) })
	}
	go func() {
		if err := eg.Wait(); err != nil {
			e.log.Error().Err(err).Msg("sync loop exited with error")
		}
		e.mu.Lock()
		e.phase = PhaseStopped
		e.mu.Unlock()
		close(done)
	}()

	e.log.Info().Int("seeded", e.store.Len()).Bool("push", e.streamer != nil).Dur("pull_interval", e.pullInterval).Msg("sync engine running")
	return nil
}

func (e *Engine) seed(ctx context.Context) error {
	reqCtx, cancel := e.requestContext(ctx)
	defer cancel()
	page, err := e.client.FetchPage(reqCtx, e.convID, e.pageSize, "")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	msgs := chat.Reversed(page.Messages)

	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()
	if err := e.store.Seed(msgs); err != nil {
		return err
	}
	e.mu.Lock()
	e.nextToken = page.NextToken
	e.state.LastKnownMessageID, _ = e.store.NewestWatermark()
	e.mu.Unlock()

	e.metrics.Merged(metrics.SourceSeed, len(msgs), len(msgs), e.store.Len())
	e.archiveAppend(ctx, msgs)
	for _, m := range msgs {
		e.listener.Render(m.User, m.Body)
	}
	return nil
}

// Stop cancels the loops, or an in-flight seed, and waits for them to exit.
// It is idempotent and safe to call in any phase.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	if e.phase == PhaseIdle || e.phase == PhaseSeeding {
		e.phase = PhaseStopped
	}
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Wait blocks until the loops have exited. It returns immediately if they never ran.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Snapshot returns a copy of the log, oldest-first.
func (e *Engine) Snapshot() []chat.Message {
	return e.store.Snapshot()
}

func (e *Engine) State() SubscriptionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HasOlder reports whether LoadOlder can fetch another page.
func (e *Engine) HasOlder() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextToken != ""
}

// Send posts a message. The store is not touched: the message enters the log once the
// pull or push loop observes it. Success is echoed locally with SentPrefix.
func (e *Engine) Send(ctx context.Context, user, body string) error {
	if strings.TrimSpace(user) == "" {
		return errors.New("send: empty user")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("send: empty message")
	}
	if e.Phase() == PhaseStopped {
		return ErrStopped
	}
	reqCtx, cancel := e.requestContext(ctx)
	defer cancel()
	if err := e.client.SendMessage(reqCtx, e.convID, user, body); err != nil {
		e.metrics.Send(false)
		e.log.Warn().Err(err).Str("user", user).Msg("send failed")
		e.listener.Notice(chat.NoticeSendError, err.Error())
		return err
	}
	e.metrics.Send(true)
	e.listener.Render(SentPrefix+user, body)
	return nil
}

// LoadOlder fetches the page before the oldest known message and prepends it.
// It returns the inserted messages, or nil when there is no older page.
func (e *Engine) LoadOlder(ctx context.Context) ([]chat.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	token := e.nextToken
	e.mu.Unlock()
	if token == "" {
		return nil, nil
	}
	reqCtx, cancel := e.requestContext(ctx)
	defer cancel()
	page, err := e.client.FetchPage(reqCtx, e.convID, e.pageSize, token)
	if err != nil {
		e.log.Warn().Err(err).Msg("load older failed")
		return nil, err
	}
	msgs := chat.Reversed(page.Messages)

	e.mergeMu.Lock()
	oldest, _ := e.store.OldestWatermark()
	inserted := e.store.MergeOlder(msgs)
	e.archivePrepend(ctx, oldest, inserted)
	e.mergeMu.Unlock()

	e.mu.Lock()
	if e.nextToken == token {
		e.nextToken = page.NextToken
	}
	e.mu.Unlock()

	e.metrics.Merged(metrics.SourceHistory, len(msgs), len(inserted), e.store.Len())
	return inserted, nil
}

// mergeNewer inserts unseen messages and renders them in log order.
func (e *Engine) mergeNewer(ctx context.Context, source string, msgs []chat.Message) []chat.Message {
	if len(msgs) == 0 {
		return nil
	}
	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()

	inserted := e.store.MergeNewer(msgs)
	e.metrics.Merged(source, len(msgs), len(inserted), e.store.Len())
	if len(inserted) == 0 {
		return nil
	}
	newest, _ := e.store.NewestWatermark()
	e.mu.Lock()
	e.state.LastKnownMessageID = newest
	e.mu.Unlock()

	e.archiveAppend(ctx, inserted)
	for _, m := range inserted {
		e.listener.Render(m.User, m.Body)
	}
	e.log.Debug().Str("source", source).Int("inserted", len(inserted)).Int("offered", len(msgs)).Msg("merged messages")
	return inserted
}

func (e *Engine) archiveAppend(ctx context.Context, msgs []chat.Message) {
	if e.archive == nil || len(msgs) == 0 {
		return
	}
	// the archive outlives the session context
	if err := e.archive.Append(context.WithoutCancel(ctx), e.convID, msgs); err != nil {
		e.log.Warn().Err(err).Msg("archive append failed")
	}
}

// archivePrepend files an older page in front of before, the oldest message of the log
// prior to the merge.
func (e *Engine) archivePrepend(ctx context.Context, before string, msgs []chat.Message) {
	if e.archive == nil || len(msgs) == 0 {
		return
	}
	if err := e.archive.Prepend(context.WithoutCancel(ctx), e.convID, before, msgs); err != nil {
		e.log.Warn().Err(err).Msg("archive prepend failed")
	}
}

func (e *Engine) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.requestTimeout > 0 {
		return context.WithTimeout(ctx, e.requestTimeout)
	}
	return context.WithCancel(ctx)
}
