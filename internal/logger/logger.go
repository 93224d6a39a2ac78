package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aquamon/internal/config"
)

// Logger wraps zerolog.Logger with the helpers used across the service
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a logger writing to stdout based on configuration
func NewLogger(cfg config.LoggingConfig) *Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Console format is
// human-readable, anything else is JSON.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{l}
}

// Nop returns a logger that discards everything, for tests
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// WithComponent adds a component name to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{l.Logger.With().Str("component", component).Logger()}
}

// WithRequestID adds a request ID to the logger
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{l.Logger.With().Str("request_id", requestID).Logger()}
}
