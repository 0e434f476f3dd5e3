package scull

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies the subsystem a log record came from.
type Component string

const (
	ComponentDevice   Component = "device"
	ComponentRegistry Component = "registry"
	ComponentDevFS    Component = "devfs"
)

// LogFormat specifies the output format for logging.
type LogFormat int

const (
	LogFormatText LogFormat = iota
	LogFormatJSON
)

var (
	defaultLogger *slog.Logger
	logLevel      = new(slog.LevelVar)
	logMutex      sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	defaultLogger = slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// Logger returns the logger shared by all packages in this module.
func Logger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return defaultLogger
}

// ComponentLogger returns the shared logger with the component attribute set.
func ComponentLogger(component Component) *slog.Logger {
	return Logger().With("component", string(component))
}

// SetLogger replaces the shared logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	defaultLogger = logger
}

// SetLogLevel sets the minimum level of the default handlers.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLogFormat replaces the shared logger with one writing to stderr in the
// given format at the current log level.
func SetLogFormat(format LogFormat) {
	opts := &slog.HandlerOptions{Level: logLevel}
	var logger *slog.Logger
	switch format {
	case LogFormatJSON:
		logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
	default:
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	SetLogger(logger)
}

// ParseLogLevel converts a level name such as "debug" or "WARN" to a
// slog.Level.
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(name))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// ParseLogFormat converts "text" or "json" to a LogFormat.
func ParseLogFormat(name string) (LogFormat, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return LogFormatText, nil
	case "json":
		return LogFormatJSON, nil
	}
	return LogFormatText, fmt.Errorf("invalid log format %q: must be text or json", name)
}
