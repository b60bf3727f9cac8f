package redisstream

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// Settings holds Redis Streams transport configuration for the local event bus.
type Settings struct {
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Addr:     "localhost:6379",
		Group:    "chatsync-ui",
		Consumer: "ui-1",
	}
}

// WatermillLogger adapts a zerolog logger to watermill's LoggerAdapter.
type WatermillLogger struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = WatermillLogger{}

func NewWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return WatermillLogger{logger: logger.With().Str("component", "watermill").Logger()}
}

func (l WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return WatermillLogger{logger: l.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
