package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type Settings struct {
	Level      string
	Format     string
	File       string
	WithCaller bool
}

// AddFlags registers the logging flags as persistent flags of root.
func AddFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	f.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.String("log-format", "text", "Log format: text or json")
	f.String("log-file", "", "Write logs to this file instead of stderr")
	f.Bool("with-caller", false, "Add caller information to log lines")
}

func SettingsFromCobra(cmd *cobra.Command) Settings {
	f := cmd.Flags()
	s := Settings{}
	s.Level, _ = f.GetString("log-level")
	s.Format, _ = f.GetString("log-format")
	s.File, _ = f.GetString("log-file")
	s.WithCaller, _ = f.GetBool("with-caller")
	return s
}

// InitLoggerFromCobra configures the global zerolog logger from cmd's flags.
// The returned closer releases the log file, if any.
func InitLoggerFromCobra(cmd *cobra.Command) (io.Closer, error) {
	return Init(SettingsFromCobra(cmd))
}

func Init(s Settings) (io.Closer, error) {
	level := zerolog.InfoLevel
	if s.Level != "" {
		l, err := zerolog.ParseLevel(s.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", s.Level)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", s.File)
		}
		out, closer = f, f
	}

	switch s.Format {
	case "", "text":
		out = zerolog.ConsoleWriter{Out: out, NoColor: s.File != ""}
	case "json":
	default:
		_ = closer.Close()
		return nil, errors.Errorf("unknown log format %q", s.Format)
	}

	ctx := zerolog.New(out).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
