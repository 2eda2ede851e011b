// Package logging provides structured logging capabilities for the node and
// the services it hosts.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// DebugLevel logs detailed debugging information.
	DebugLevel LogLevel = "debug"
	// InfoLevel logs informational messages.
	InfoLevel LogLevel = "info"
	// WarnLevel logs warning messages.
	WarnLevel LogLevel = "warn"
	// ErrorLevel logs error messages.
	ErrorLevel LogLevel = "error"
)

// Logger is a wrapper around slog.Logger that provides structured logging.
type Logger struct {
	*slog.Logger
}

// Config holds the configuration for the logger.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel
	// Output is where the logs will be written to.
	Output io.Writer
	// ServiceName is the name of the process that is logging.
	ServiceName string
	// Environment is the environment the node is running in (e.g., "production", "development").
	Environment string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:       InfoLevel,
		Output:      os.Stdout,
		ServiceName: "p2pnode",
		Environment: "development",
	}
}

// ParseLevel maps a configured level name onto a LogLevel, falling back to
// info for anything unrecognised.
func ParseLevel(raw string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new structured logger with the given configuration.
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: cfg.Level.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(time.RFC3339Nano))
				}
			}
			return a
		},
	})

	logger := slog.New(handler).With(
		slog.String("app", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	)

	return &Logger{Logger: logger}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// Field keys shared by the node's log lines.
const (
	KeyComponent = "component"
	KeyInstance  = "instance"
	KeyNodeID    = "node_id"
	KeyNodeName  = "node_name"
	KeyError     = "error"
	KeyStack     = "stack"
)

// WithField adds a field to the logger.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Logger: l.With(slog.Any(key, value))}
}

// ForNode tags every line with the node's short ID and name.
func (l *Logger) ForNode(shortID, name string) *Logger {
	return &Logger{Logger: l.With(slog.String(KeyNodeID, shortID), slog.String(KeyNodeName, name))}
}

// ForService tags every line with the service name and its instance ID.
func (l *Logger) ForService(name, instance string) *Logger {
	return &Logger{Logger: l.With(slog.String(KeyComponent, name), slog.String(KeyInstance, instance))}
}

// stackTracer is satisfied by errors that captured a stack.
type stackTracer interface {
	StackTrace() string
}

// WithError adds an error to the logger, together with its stack when the
// error carries one.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	logger := l.With(slog.String(KeyError, err.Error()))
	var st stackTracer
	if errors.As(err, &st) {
		if stack := st.StackTrace(); stack != "" {
			logger = logger.With(slog.String(KeyStack, stack))
		}
	}
	return &Logger{Logger: logger}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.Logger.Debug(msg, toSlogArgs(args)...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.Logger.Info(msg, toSlogArgs(args)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.Logger.Warn(msg, toSlogArgs(args)...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.Logger.Error(msg, toSlogArgs(args)...)
}

// toSlogArgs converts key/value pairs into slog attributes. A trailing key
// without a value is paired with an empty string.
func toSlogArgs(args []interface{}) []any {
	if len(args) == 0 {
		return nil
	}

	if len(args)%2 != 0 {
		args = append(args, "")
	}

	slogArgs := make([]any, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "unknown"
		}
		slogArgs = append(slogArgs, slog.Any(key, args[i+1]))
	}

	return slogArgs
}
