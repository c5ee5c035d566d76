package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			defer logger.Sync() //nolint:errcheck

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Errorf("debug enabled = %v, want %v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger("verbose"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestWithContextLogger_AttachesBatchID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ctx := WithBatchID(context.Background(), "batch-42")
	WithContextLogger(logger, ctx).Info("candidate processed")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["batchId"] != "batch-42" {
		t.Errorf("batchId field = %v, want batch-42", fields["batchId"])
	}
}

func TestWithContextLogger_NoBatchID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	WithContextLogger(logger, context.Background()).Info("run skipped")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if _, ok := entries[0].ContextMap()["batchId"]; ok {
		t.Error("batchId field should be absent without context value")
	}
}

func TestBatchIDFromContext(t *testing.T) {
	t.Parallel()

	if _, ok := BatchIDFromContext(context.Background()); ok {
		t.Error("expected no batch id on fresh context")
	}

	ctx := WithBatchID(context.Background(), "batch-7")
	got, ok := BatchIDFromContext(ctx)
	if !ok || got != "batch-7" {
		t.Errorf("BatchIDFromContext() = %q, %v; want batch-7, true", got, ok)
	}
}
