package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/auto-dns/dock-route/internal/config"
)

// SetupLogger builds the process logger. Output goes to stderr so command
// output on stdout stays clean.
func SetupLogger(cfg *config.LoggingConfig) zerolog.Logger {
	return newLogger(os.Stderr, cfg)
}

func newLogger(out io.Writer, cfg *config.LoggingConfig) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	return zerolog.New(consoleWriter).
		Level(level).
		With().
		Timestamp().
		Caller().
		Str("service", "dock_route").
		Str("host", hostname).
		Logger()
}
