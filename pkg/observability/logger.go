package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel is the minimum severity a Logger emits
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

var slogLevels = [...]slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return levelNames[InfoLevel]
	}
	return levelNames[l]
}

func (l LogLevel) slog() slog.Level {
	if l < DebugLevel || l > ErrorLevel {
		return slog.LevelInfo
	}
	return slogLevels[l]
}

// ParseLogLevel accepts debug, info, warn/warning and error in any case.
// Unknown names report false and fall back to InfoLevel.
func ParseLogLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	}
	return InfoLevel, false
}

// Logger writes JSON lines through slog. Derived loggers share the handler
// and only add attributes.
type Logger struct {
	base *slog.Logger
}

// NewLogger builds a JSON logger writing to output (stdout when nil)
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	h := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slog()})
	return &Logger{base: slog.New(h)}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

// Slog exposes the underlying slog.Logger for libraries that take one
func (l *Logger) Slog() *slog.Logger {
	return l.base
}

// WithField adds a single attribute
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(key, value)
}

// WithFields adds several attributes at once
func (l *Logger) WithFields(fields map[string]any) *Logger {
	attrs := make([]any, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return l.with(attrs...)
}

// WithComponent names the subsystem emitting the line
func (l *Logger) WithComponent(name string) *Logger {
	return l.with(slog.String("component", name))
}

// WithError attaches err as the error attribute; nil is ignored
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// WithInvoice tags lines with an invoice id and, once issued, its number
func (l *Logger) WithInvoice(id, number string) *Logger {
	if number == "" {
		return l.with(slog.String("invoice_id", id))
	}
	return l.with(slog.String("invoice_id", id), slog.String("invoice_number", number))
}

// WithProject tags lines with a project id
func (l *Logger) WithProject(id string) *Logger {
	return l.with(slog.String("project_id", id))
}

func (l *Logger) Debug(message string) { l.base.Debug(message) }
func (l *Logger) Info(message string)  { l.base.Info(message) }
func (l *Logger) Warn(message string)  { l.base.Warn(message) }
func (l *Logger) Error(message string) { l.base.Error(message) }

func (l *Logger) Debugf(format string, args ...any) { l.logf(slog.LevelDebug, format, args) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(slog.LevelInfo, format, args) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(slog.LevelWarn, format, args) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(slog.LevelError, format, args) }

func (l *Logger) logf(level slog.Level, format string, args []any) {
	ctx := context.Background()
	if !l.base.Enabled(ctx, level) {
		return
	}
	l.base.Log(ctx, level, fmt.Sprintf(format, args...))
}

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	LoggerKey    contextKey = "logger"
)

// WithRequestID stores the request ID on ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID returns the request ID on ctx, or ""
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithLogger stores a request-scoped logger on ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger returns the logger stored on ctx, or a fresh info logger
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext is GetLogger plus the request ID (when the logger was not
// scoped yet) and the active trace and span IDs.
func FromContext(ctx context.Context) *Logger {
	logger, scoped := ctx.Value(LoggerKey).(*Logger)
	if !scoped {
		logger = NewLogger(InfoLevel, os.Stdout)
		if id := GetRequestID(ctx); id != "" {
			logger = logger.with(slog.String("request_id", id))
		}
	}
	return UpdateLoggerWithTraceContext(ctx, logger)
}
