package logger

import (
	"context"
	"path/filepath"
	"testing"

	"ojbox/pkg/utils/contextkey"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ojbox.log")
	l, err := NewLogger(Config{Level: "debug", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.WithContext(context.Background()).Info("hello")
	_ = l.Sync()
}

func TestExtractFieldsFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), contextkey.TraceID, "trace-1")
	ctx = context.WithValue(ctx, contextkey.RequestID, "req-1")

	fields := extractFieldsFromContext(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Key != "trace_id" || fields[0].String != "trace-1" {
		t.Fatalf("unexpected trace field: %+v", fields[0])
	}
	if fields[1].Key != "request_id" || fields[1].String != "req-1" {
		t.Fatalf("unexpected request field: %+v", fields[1])
	}
}

func TestGlobalHelpersAreSafeBeforeInit(t *testing.T) {
	globalLogger = nil
	Info(context.Background(), "ignored")
	if err := Sync(); err != nil {
		t.Fatalf("sync without logger: %v", err)
	}
}
