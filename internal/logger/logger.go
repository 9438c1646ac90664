package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/rs/zerolog"
)

func SetupLogger(cfg *config.LoggingConfig) zerolog.Logger {
	return NewLogger(cfg, zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	})
}

// NewLogger builds the service logger on top of an arbitrary writer.
func NewLogger(cfg *config.LoggingConfig, w io.Writer) zerolog.Logger {
	levelStr := strings.ToLower(cfg.Level)
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Caller().
		Str("service", "dns_record_sync").
		Str("host", hostname).
		Logger()
}
