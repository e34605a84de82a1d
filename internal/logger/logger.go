package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = newLogger(os.Stderr)
)

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: w != os.Stderr}).
		With().Timestamp().Logger()
}

// ParseLevel parses a level name: trace, debug, info, warn, error, fatal, panic.
// An empty name selects info.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// SetLevel sets the minimum level for all log output.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// SetOutput redirects log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log = newLogger(w)
}

// Init configures level and destination. When file is set, output goes to
// both stderr and the file.
func Init(level, file string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetLevel(lvl)

	if file == "" {
		return nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

func Trace(format string, args ...any) {
	current().Trace().Msgf(format, args...)
}

func Debug(format string, args ...any) {
	current().Debug().Msgf(format, args...)
}

func Info(format string, args ...any) {
	current().Info().Msgf(format, args...)
}

func Warn(format string, args ...any) {
	current().Warn().Msgf(format, args...)
}

func Error(format string, args ...any) {
	current().Error().Msgf(format, args...)
}
