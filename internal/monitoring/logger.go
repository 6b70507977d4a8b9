// Package monitoring owns the process logger.
package monitoring

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel overrides the default log level (trace, debug, info, warn,
// error, disabled).
const EnvLogLevel = "FREED_LOG_LEVEL"

var (
	mu     sync.RWMutex
	logger = NewConsoleLogger(os.Stderr)
)

// NewConsoleLogger builds a human-readable zerolog logger writing to w.
func NewConsoleLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).With().Timestamp().Logger().Level(LevelFromEnv())
}

// LevelFromEnv parses EnvLogLevel, defaulting to info.
func LevelFromEnv() zerolog.Level {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogLevel)))
	switch raw {
	case "":
		return zerolog.InfoLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger returns the process logger.
func Logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// Component returns a child logger tagged with component=name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// SetLogger replaces the process logger.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Mute discards all log output. Tests call it to keep output quiet.
func Mute() {
	SetLogger(zerolog.Nop())
}

// Logf writes a printf-style message at info level.
func Logf(format string, v ...interface{}) {
	Logger().Info().Msgf(format, v...)
}
