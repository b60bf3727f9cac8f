package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/config"
	"github.com/go-go-golems/chatsync/pkg/convsync"
	"github.com/go-go-golems/chatsync/pkg/events"
	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/persistence/chatstore"
	"github.com/go-go-golems/chatsync/pkg/transport"
)

// session holds everything one `run` owns. close releases it in reverse order.
type session struct {
	engine  *convsync.Engine
	bus     *events.Bus
	metrics *http.Server
	closers []func() error
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Str("component", "cli").Msg("close failed")
		}
	}
}

func newSession(s config.Settings) (*session, error) {
	sess := &session{}
	ok := false
	defer func() {
		if !ok {
			sess.close()
		}
	}()

	client, err := transport.NewHTTPClient(s.Addr, transport.WithRequestTimeout(s.RequestTimeout))
	if err != nil {
		return nil, err
	}

	var rdb redis.UniversalClient
	if s.Push == config.PushRedis || s.EventBus == config.BusRedis {
		rdb = redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		sess.closers = append(sess.closers, rdb.Close)
	}

	var streamer transport.Streamer
	switch s.Push {
	case config.PushWebSocket:
		streamer, err = transport.NewWebSocketStreamer(s.WSURL)
	case config.PushRedis:
		streamer, err = transport.NewRedisStreamer(rdb)
	}
	if err != nil {
		return nil, err
	}

	switch s.EventBus {
	case config.BusRedis:
		sess.bus, err = events.NewRedisBus(rdb, s.RedisStream)
		if err != nil {
			return nil, errors.Wrap(err, "redis event bus")
		}
	default:
		sess.bus = events.NewMemoryBus(0)
	}
	sess.closers = append(sess.closers, sess.bus.Close)

	opts := []convsync.Option{
		convsync.WithPullInterval(s.PullInterval),
		convsync.WithPageSize(s.PageSize),
		convsync.WithRequestTimeout(s.RequestTimeout),
		convsync.WithListener(events.NewBusListener(sess.bus, s.Conversation)),
	}
	if s.ExponentialBackoff {
		opts = append(opts, convsync.WithReconnectBackOff(convsync.ExponentialBackOff(s.RetryDelay, 12*s.RetryDelay)))
	} else {
		opts = append(opts, convsync.WithReconnectBackOff(convsync.ConstantBackOff(s.RetryDelay)))
	}

	if s.Archive != "" {
		archive, err := chatstore.NewSQLiteArchive(s.Archive)
		if err != nil {
			return nil, err
		}
		sess.closers = append(sess.closers, archive.Close)
		opts = append(opts, convsync.WithArchive(archive))
	}

	if s.MetricsAddr != "" {
		collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, convsync.WithMetrics(collector))
		sess.metrics = serveMetrics(s.MetricsAddr)
		sess.closers = append(sess.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return sess.metrics.Shutdown(ctx)
		})
	}

	sess.engine, err = convsync.New(s.Conversation, client, streamer, chatstore.NewMessageStore(), opts...)
	if err != nil {
		return nil, err
	}
	ok = true
	return sess, nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("component", "metrics").Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("component", "metrics").Str("addr", addr).Msg("serving metrics")
	return srv
}
