// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/sydney-stream/sydney"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/config"

	"github.com/rs/zerolog"
)

// New constructs a zerolog logger writing to w, or stderr when w is nil.
// Stdout is left to command output.
func New(cfg config.LoggingConfig, w io.Writer) (zerolog.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	if w == nil {
		w = os.Stderr
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", internal.DefaultAppName).
		Logger(), nil
}
