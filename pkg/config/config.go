package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatsync/pkg/redisstream"
)

// Push stream backends.
const (
	PushWebSocket = "websocket"
	PushRedis     = "redis"
	PushNone      = "none"
)

// Event bus backends.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

const envPrefix = "CHATSYNC_"

// Settings configures one chat session. Values are resolved as defaults, then the YAML
// file, then CHATSYNC_* environment variables, then explicitly set flags.
type Settings struct {
	User               string               `yaml:"user"`
	Conversation       string               `yaml:"conversation"`
	Addr               string               `yaml:"addr"`
	WSURL              string               `yaml:"ws_url"`
	Push               string               `yaml:"push"`
	RedisAddr          string               `yaml:"redis_addr"`
	PullInterval       time.Duration        `yaml:"pull_interval"`
	RetryDelay         time.Duration        `yaml:"retry_delay"`
	ExponentialBackoff bool                 `yaml:"exponential_backoff"`
	PageSize           int                  `yaml:"page_size"`
	RequestTimeout     time.Duration        `yaml:"request_timeout"`
	Archive            string               `yaml:"archive"`
	MetricsAddr        string               `yaml:"metrics_addr"`
	Markdown           bool                 `yaml:"markdown"`
	EventBus           string               `yaml:"event_bus"`
	RedisStream        redisstream.Settings `yaml:"redis_stream"`
}

func Default() Settings {
	return Settings{
		Conversation: "abc123123",
		Addr:         "http://localhost:9001/api/v1",
		WSURL:        "ws://localhost:9004/api/v1/ws",
		Push:         PushWebSocket,
		RedisAddr:    "localhost:6379",
		PullInterval: time.Second,
		RetryDelay:   5 * time.Second,
		PageSize:     10,
		EventBus:     BusMemory,
		RedisStream:  redisstream.DefaultSettings(),
	}
}

// Load reads a .env file if present, then path (if set) on top of the defaults, then
// the environment.
func Load(path string) (Settings, error) {
	_ = godotenv.Load(".env")

	s := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return s, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return s, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return s, err
	}
	return s, nil
}

// ApplyEnv overrides fields from CHATSYNC_* variables.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "%s%s", envPrefix, key)
			}
			*dst = d
		}
		return nil
	}

	str("USER", &s.User)
	str("CONVERSATION", &s.Conversation)
	str("ADDR", &s.Addr)
	str("WS_URL", &s.WSURL)
	str("PUSH", &s.Push)
	str("REDIS_ADDR", &s.RedisAddr)
	str("ARCHIVE", &s.Archive)
	str("METRICS_ADDR", &s.MetricsAddr)
	str("EVENT_BUS", &s.EventBus)
	if err := dur("PULL_INTERVAL", &s.PullInterval); err != nil {
		return err
	}
	if err := dur("RETRY_DELAY", &s.RetryDelay); err != nil {
		return err
	}
	if err := dur("REQUEST_TIMEOUT", &s.RequestTimeout); err != nil {
		return err
	}
	if v, ok := lookup(envPrefix + "PAGE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, envPrefix+"PAGE_SIZE")
		}
		s.PageSize = n
	}
	return nil
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Conversation) == "" {
		return errors.New("conversation must not be empty")
	}
	if err := checkURL(s.Addr, "http", "https"); err != nil {
		return errors.Wrap(err, "addr")
	}
	switch s.Push {
	case PushWebSocket:
		if err := checkURL(s.WSURL, "ws", "wss"); err != nil {
			return errors.Wrap(err, "ws-url")
		}
	case PushRedis:
		if s.RedisAddr == "" {
			return errors.New("redis-addr is required with --push redis")
		}
	case PushNone:
	default:
		return errors.Errorf("unknown push backend %q (want websocket, redis or none)", s.Push)
	}
	switch s.EventBus {
	case BusMemory, BusRedis:
	default:
		return errors.Errorf("unknown event bus %q (want memory or redis)", s.EventBus)
	}
	if s.PullInterval <= 0 {
		return errors.New("pull-interval must be positive")
	}
	if s.RetryDelay <= 0 {
		return errors.New("retry-delay must be positive")
	}
	if s.PageSize <= 0 {
		return errors.New("page-size must be positive")
	}
	if s.RequestTimeout < 0 {
		return errors.New("request-timeout must not be negative")
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return errors.Errorf("%q is not a %s url", raw, strings.Join(schemes, "/"))
}
