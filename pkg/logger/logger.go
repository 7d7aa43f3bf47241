// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`    // debug, info, warn, error
	Format string `json:"format" mapstructure:"format" yaml:"format"` // console, json
	File   string `json:"file" mapstructure:"file" yaml:"file"`       // optional log file
}

var (
	root    zerolog.Logger
	sink    *os.File
	mu      sync.RWMutex
	started bool
)

// ParseLevel converts a level name to a zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to out. It does not touch the global logger.
func New(config LogConfig, out io.Writer) zerolog.Logger {
	if strings.EqualFold(config.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	return zerolog.New(out).Level(ParseLevel(config.Level)).With().Timestamp().Logger()
}

// Init replaces the global logger. Output goes to stderr and, when
// config.File is set, is also appended to that file.
func Init(config LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = os.Stderr
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", config.File, err)
		}
		if sink != nil {
			_ = sink.Close()
		}
		sink = f
		out = io.MultiWriter(os.Stderr, f)
	}

	root = New(config, out)
	started = true
	return nil
}

// Get returns the global logger. Before Init it is a stderr info logger.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !started {
		return zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
	return root
}

// Component returns the global logger tagged with component=name.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}

// Close releases the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if sink == nil {
		return nil
	}
	err := sink.Close()
	sink = nil
	return err
}

// Debug returns a debug level event on the global logger.
func Debug() *zerolog.Event {
	l := Get()
	return l.Debug()
}

// Info returns an info level event on the global logger.
func Info() *zerolog.Event {
	l := Get()
	return l.Info()
}

// Warn returns a warn level event on the global logger.
func Warn() *zerolog.Event {
	l := Get()
	return l.Warn()
}

// Error returns an error level event on the global logger.
func Error() *zerolog.Event {
	l := Get()
	return l.Error()
}
