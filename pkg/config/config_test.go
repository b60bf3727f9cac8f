package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chatsync.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	p := writeConfig(t, `
user: carol
conversation: room-1
pull_interval: 250ms
page_size: 25
push: none
redis_stream:
  group: g1
`)
	s, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "carol", s.User)
	require.Equal(t, "room-1", s.Conversation)
	require.Equal(t, 250*time.Millisecond, s.PullInterval)
	require.Equal(t, 25, s.PageSize)
	require.Equal(t, PushNone, s.Push)
	require.Equal(t, "g1", s.RedisStream.Group)
	require.Equal(t, "ui-1", s.RedisStream.Consumer)
	require.Equal(t, 5*time.Second, s.RetryDelay)
	require.NoError(t, s.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_, err = Load(writeConfig(t, "pull_interval: [1, 2]"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CHATSYNC_USER":          "dave",
		"CHATSYNC_PULL_INTERVAL": "2s",
		"CHATSYNC_PAGE_SIZE":     "5",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	s := Default()
	require.NoError(t, s.ApplyEnv(lookup))
	require.Equal(t, "dave", s.User)
	require.Equal(t, 2*time.Second, s.PullInterval)
	require.Equal(t, 5, s.PageSize)

	env["CHATSYNC_RETRY_DELAY"] = "soon"
	require.Error(t, s.ApplyEnv(lookup))
}

func TestApplyFlags_OnlyExplicit(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	AddFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--user", "erin", "--retry-delay", "1s", "--redis-addr", "redis:6380"}))

	s := Default()
	s.PageSize = 40
	require.NoError(t, s.ApplyFlags(cmd))
	require.Equal(t, "erin", s.User)
	require.Equal(t, time.Second, s.RetryDelay)
	require.Equal(t, 40, s.PageSize)
	require.Equal(t, "redis:6380", s.RedisStream.Addr)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty conversation", func(s *Settings) { s.Conversation = " " }},
		{"bad addr", func(s *Settings) { s.Addr = "localhost:9001" }},
		{"bad ws url", func(s *Settings) { s.WSURL = "http://localhost:9004/ws" }},
		{"unknown push", func(s *Settings) { s.Push = "sse" }},
		{"unknown bus", func(s *Settings) { s.EventBus = "kafka" }},
		{"zero interval", func(s *Settings) { s.PullInterval = 0 }},
		{"zero page", func(s *Settings) { s.PageSize = 0 }},
	}
	require.NoError(t, Default().Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Default()
			tc.mutate(&s)
			require.Error(t, s.Validate())
		})
	}

	s := Default()
	s.Push = PushRedis
	s.WSURL = ""
	require.NoError(t, s.Validate())
}
