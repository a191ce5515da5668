package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// decode parses the single JSON line written by slog
func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("invoice created")
		entry := decode(t, &buf)
		if entry["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", entry["level"])
		}
		if entry["msg"] != "invoice created" {
			t.Errorf("Expected message 'invoice created', got %v", entry["msg"])
		}
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		logger.Error("error message")
		if got := strings.Count(buf.String(), "\n"); got != 2 {
			t.Errorf("Expected 2 log lines, got %d", got)
		}
	})

	t.Run("error level drops warnings", func(t *testing.T) {
		var quiet bytes.Buffer
		NewLogger(ErrorLevel, &quiet).Warnf("budget at %d%%", 90)
		if quiet.Len() > 0 {
			t.Error("Warn message should not be logged at Error level")
		}
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.
		WithField("layout", "fixed").
		WithFields(map[string]interface{}{"attempt": 2}).
		WithError(errors.New("version conflict")).
		Infof("retrying %s", "UpdateInvoice")

	entry := decode(t, &buf)
	if entry["layout"] != "fixed" {
		t.Errorf("Expected layout 'fixed', got %v", entry["layout"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("Expected attempt 2, got %v", entry["attempt"])
	}
	if entry["error"] != "version conflict" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
	if entry["msg"] != "retrying UpdateInvoice" {
		t.Errorf("Unexpected message %v", entry["msg"])
	}
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestLogger_DomainTags(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithInvoice("inv-1", "INV-2025-26/0001").WithProject("p1").Info("status changed")
	entry := decode(t, &buf)
	if entry["invoice_id"] != "inv-1" || entry["invoice_number"] != "INV-2025-26/0001" {
		t.Errorf("Expected invoice tags, got %v", entry)
	}
	if entry["project_id"] != "p1" {
		t.Errorf("Expected project tag, got %v", entry["project_id"])
	}

	buf.Reset()
	logger.WithInvoice("inv-2", "").Info("draft")
	entry = decode(t, &buf)
	if _, ok := entry["invoice_number"]; ok {
		t.Error("Empty invoice number should not be logged")
	}
}

func TestContextHelpers(t *testing.T) {
	t.Run("request id round trip", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		if got := GetRequestID(ctx); got != "req-123" {
			t.Errorf("Expected req-123, got %q", got)
		}
		if got := GetRequestID(context.Background()); got != "" {
			t.Errorf("Expected empty request id, got %q", got)
		}
	})

	t.Run("scoped logger is returned as is", func(t *testing.T) {
		var buf bytes.Buffer
		scoped := NewLogger(InfoLevel, &buf).WithField("request_id", "req-1")
		ctx := WithRequestID(WithLogger(context.Background(), scoped), "req-1")

		FromContext(ctx).Info("hello")
		if got := strings.Count(buf.String(), "request_id"); got != 1 {
			t.Errorf("Expected request_id once, got %d in %s", got, buf.String())
		}
	})

	t.Run("get logger falls back to a default", func(t *testing.T) {
		if GetLogger(context.Background()) == nil {
			t.Error("Expected a default logger")
		}
	})

	t.Run("trace ids are attached inside a span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		var buf bytes.Buffer
		FromContext(WithLogger(ctx, NewLogger(InfoLevel, &buf))).Info("traced")
		entry := decode(t, &buf)
		if entry["trace_id"] != span.SpanContext().TraceID().String() {
			t.Errorf("Expected trace_id %s, got %v", span.SpanContext().TraceID(), entry["trace_id"])
		}
	})
}

func TestLogLevel_String(t *testing.T) {
	tests := map[LogLevel]string{
		DebugLevel: "DEBUG",
		InfoLevel:  "INFO",
		WarnLevel:  "WARN",
		ErrorLevel: "ERROR",
	}
	for level, want := range tests {
		if got := level.String(); got != want {
			t.Errorf("LogLevel(%d).String() = %s, want %s", level, got, want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{" Warning ", WarnLevel, true},
		{"ERROR", ErrorLevel, true},
		{"trace", InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if got := LogLevel(42).String(); got != "INFO" {
		t.Errorf("out of range level String() = %s, want INFO", got)
	}
}

func TestLogger_WithComponentAndSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf).WithComponent("sweep")
	logger.Slog().Debug("raw")

	entry := decode(t, &buf)
	if entry["component"] != "sweep" || entry["msg"] != "raw" {
		t.Errorf("unexpected entry %v", entry)
	}
}
