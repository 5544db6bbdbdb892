package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the service logger is built.
type Config struct {
	Level   string
	Format  string
	Service string
}

// NewLogger creates a zerolog logger writing to stdout.
func NewLogger(cfg Config) *zerolog.Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a zerolog logger writing to w. Format "console"
// produces human readable output, anything else produces JSON lines.
func NewLoggerWithWriter(cfg Config, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}

	logger := ctx.Logger()
	return &logger
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
