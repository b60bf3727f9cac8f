package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// AddFlags registers the session flags on cmd with the built-in defaults.
func AddFlags(cmd *cobra.Command) {
	d := Default()
	f := cmd.Flags()
	f.String("config", "", "YAML settings file")
	f.String("user", d.User, "Name to send messages as")
	f.String("conversation", d.Conversation, "Conversation id")
	f.String("addr", d.Addr, "Base URL of the conversation API")
	f.String("ws-url", d.WSURL, "Notification websocket URL")
	f.String("push", d.Push, "Push backend: websocket, redis or none")
	f.String("redis-addr", d.RedisAddr, "Redis address for --push redis and --event-bus redis")
	f.Duration("pull-interval", d.PullInterval, "Refresh interval")
	f.Duration("retry-delay", d.RetryDelay, "Delay before reconnecting the push stream")
	f.Bool("exponential-backoff", d.ExponentialBackoff, "Grow the reconnect delay exponentially from --retry-delay")
	f.Int("page-size", d.PageSize, "Messages per page")
	f.Duration("request-timeout", d.RequestTimeout, "Per-request timeout (0 disables)")
	f.String("archive", d.Archive, "SQLite file to archive the transcript in")
	f.String("metrics-addr", d.MetricsAddr, "Serve Prometheus metrics on this address")
	f.Bool("markdown", d.Markdown, "Render message bodies as markdown")
	f.String("event-bus", d.EventBus, "Event bus between engine and UI: memory or redis")
}

// ApplyFlags copies every flag the user set explicitly onto s.
func (s *Settings) ApplyFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err != nil || !f.Changed(name) {
			return
		}
		if e := apply(); e != nil {
			err = errors.Wrapf(e, "flag --%s", name)
		}
	}
	str := func(name string, dst *string) {
		set(name, func() (e error) { *dst, e = f.GetString(name); return })
	}

	str("user", &s.User)
	str("conversation", &s.Conversation)
	str("addr", &s.Addr)
	str("ws-url", &s.WSURL)
	str("push", &s.Push)
	str("redis-addr", &s.RedisAddr)
	str("archive", &s.Archive)
	str("metrics-addr", &s.MetricsAddr)
	str("event-bus", &s.EventBus)
	set("pull-interval", func() (e error) { s.PullInterval, e = f.GetDuration("pull-interval"); return })
	set("retry-delay", func() (e error) { s.RetryDelay, e = f.GetDuration("retry-delay"); return })
	set("request-timeout", func() (e error) { s.RequestTimeout, e = f.GetDuration("request-timeout"); return })
	set("exponential-backoff", func() (e error) { s.ExponentialBackoff, e = f.GetBool("exponential-backoff"); return })
	set("markdown", func() (e error) { s.Markdown, e = f.GetBool("markdown"); return })
	set("page-size", func() (e error) { s.PageSize, e = f.GetInt("page-size"); return })
	if s.RedisStream.Addr == "" || f.Changed("redis-addr") {
		s.RedisStream.Addr = s.RedisAddr
	}
	return err
}

// FromCommand resolves the settings for cmd: file, environment, then flags.
func FromCommand(cmd *cobra.Command) (Settings, error) {
	path, _ := cmd.Flags().GetString("config")
	s, err := Load(path)
	if err != nil {
		return s, err
	}
	if err := s.ApplyFlags(cmd); err != nil {
		return s, err
	}
	return s, s.Validate()
}
