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
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("logger should not be nil")
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled=%v, want=%v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("not-a-level")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("expected nil logger for invalid level")
	}
}

func TestJobID_ContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := WithJobID(context.Background(), "job-123")
	jobID, ok := JobIDFromContext(ctx)
	if !ok {
		t.Fatal("expected job id to exist")
	}
	if jobID != "job-123" {
		t.Fatalf("job id=%q, want=%q", jobID, "job-123")
	}
}

func TestJobID_EmptyValue(t *testing.T) {
	t.Parallel()

	if _, ok := JobIDFromContext(WithJobID(context.TODO(), "")); ok {
		t.Fatal("expected empty job id to be treated as missing")
	}
	if _, ok := JobIDFromContext(context.Background()); ok {
		t.Fatal("expected job id to be missing")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	ctx := WithJobID(context.Background(), "job-789")
	WithContextLogger(baseLogger, ctx).Info("message with job")
	WithContextLogger(baseLogger, context.Background()).Info("message without job")

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("entries=%d, want=2", len(entries))
	}
	if got := entries[0].ContextMap()["jobId"]; got != "job-789" {
		t.Fatalf("jobId=%v, want=%q", got, "job-789")
	}
	if _, ok := entries[1].ContextMap()["jobId"]; ok {
		t.Fatal("expected jobId field to be absent")
	}
}

func TestWithContextLogger_NilLogger(t *testing.T) {
	t.Parallel()

	if got := WithContextLogger(nil, context.Background()); got != nil {
		t.Fatal("expected nil logger")
	}
}
