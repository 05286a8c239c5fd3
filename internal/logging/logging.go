// Package logging builds the structured zerolog logger used across every
// component. No package-global logger is kept; callers construct one with
// New and pass it down explicitly.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the wire format of emitted log lines.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures the logger.
type Config struct {
	Level   string // debug|info|warn|error
	Format  Format
	Service string
}

// New builds a zerolog.Logger following the teacher's Loki-friendly shape:
// JSON by default, console writer for local development, a fixed "service"
// field, and caller info attached.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	service := cfg.Service
	if service == "" {
		service = "echo-realtime-core"
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}
