package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger initialization.
type Config struct {
	Format string // "json", "console", or "auto"
	Level  string // "debug", "info", "warn", "error"
}

var (
	mu         sync.RWMutex
	baseLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init configures the process-wide base logger. Safe to call more than once;
// the last call wins.
func Init(cfg Config) {
	level := parseLevel(cfg.Level)

	var w io.Writer = os.Stderr
	if useConsole(cfg.Format) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	mu.Lock()
	baseLogger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	mu.Unlock()
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger.With().Str("component", name).Logger()
}

// Base returns the untagged base logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func useConsole(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		return true
	case "json":
		return false
	default:
		// "auto" currently means json
		return false
	}
}
