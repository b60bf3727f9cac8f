package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONFile(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	p := filepath.Join(t.TempDir(), "chatsync.log")
	closer, err := Init(Settings{Level: "debug", Format: "json", File: p})
	require.NoError(t, err)
	log.Debug().Str("component", "test").Msg("hello")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Contains(t, string(b), `"component":"test"`)
	require.Contains(t, string(b), `"level":"debug"`)
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestInit_Rejects(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	_, err := Init(Settings{Level: "loud"})
	require.Error(t, err)
	_, err = Init(Settings{Format: "xml"})
	require.Error(t, err)
}
