package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/config"
)

// NewLogger creates a structured zerolog.Logger for the daemon. The console
// format is meant for interactive use; everything else gets JSON lines.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(out io.Writer, cfg *config.Config) zerolog.Logger {
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", "devhost").Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
