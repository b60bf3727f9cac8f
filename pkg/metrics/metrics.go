package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Sources of merged messages.
const (
	SourceSeed    = "seed"
	SourcePull    = "pull"
	SourcePush    = "push"
	SourceHistory = "history"
)

// Collector exposes sync engine counters. A nil *Collector is valid and records nothing.
type Collector struct {
	merged      *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	sends       *prometheus.CounterVec
	reconnects  prometheus.Counter
	connected   prometheus.Gauge
	logSize     prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		merged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "messages_merged_total",
			Help:      "Messages inserted into the local log, by source.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "messages_duplicate_total",
			Help:      "Messages dropped because their id was already known, by source.",
		}, []string{"source"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "fetch_errors_total",
			Help:      "Failed pull fetches, by error kind.",
		}, []string{"kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "sends_total",
			Help:      "Send attempts, by result.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "stream_reconnects_total",
			Help:      "Push stream reconnect attempts.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "stream_connected",
			Help:      "1 while the push stream is connected.",
		}),
		logSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "log_messages",
			Help:      "Messages currently held in the local log.",
		}),
	}
	for _, col := range []prometheus.Collector{c.merged, c.duplicates, c.fetchErrors, c.sends, c.reconnects, c.connected, c.logSize} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}
	return c, nil
}

// Merged records the outcome of one merge: inserted of offered messages were new.
func (c *Collector) Merged(source string, offered, inserted, logSize int) {
	if c == nil {
		return
	}
	c.merged.WithLabelValues(source).Add(float64(inserted))
	if dup := offered - inserted; dup > 0 {
		c.duplicates.WithLabelValues(source).Add(float64(dup))
	}
	c.logSize.Set(float64(logSize))
}

func (c *Collector) FetchError(kind string) {
	if c == nil {
		return
	}
	c.fetchErrors.WithLabelValues(kind).Inc()
}

func (c *Collector) Send(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.sends.WithLabelValues(result).Inc()
}

func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

func (c *Collector) Connected(up bool) {
	if c == nil {
		return
	}
	if up {
		c.connected.Set(1)
		return
	}
	c.connected.Set(0)
}
