package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/productmatch/internal/logging"
)

type transientError struct{}

func (transientError) Error() string   { return "transient" }
func (transientError) Timeout() bool   { return true }
func (transientError) Temporary() bool { return true }

var fastPolicy = Policy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestDoRetriesTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), zap.NewNop(), fastPolicy, "test.op", "s-1", func() error {
		attempts++
		if attempts < 3 {
			return transientError{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoGivesUpAfterLastAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), zap.NewNop(), fastPolicy, "test.op", "s-2", func() error {
		attempts++
		return transientError{}
	})
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.SearchID != "s-2" {
		t.Fatalf("expected OperationError for s-2, got %v", err)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, zap.NewNop(), fastPolicy, "test.op", "", func() error {
		attempts++
		cancel()
		return transientError{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoSingleAttemptPolicy(t *testing.T) {
	if err := Do(context.Background(), zap.NewNop(), Policy{Attempts: 1}, "op", "", func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := Do(context.Background(), zap.NewNop(), Policy{Attempts: 1}, "op", "", func() error { return transientError{} })
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"timeout interface", transientError{}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v; want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDoPermanentErrorIsNotLoggedAsError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	notFound := errors.New("record not found")
	attempts := 0

	err := Do(context.Background(), zap.New(core), fastPolicy, "repository.find_by_search_id", "s-3", func() error {
		attempts++
		return notFound
	})
	if !errors.Is(err, notFound) {
		t.Fatalf("expected wrapped not-found error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("permanent errors must not be retried, got %d attempts", attempts)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Fatalf("expected no error-level logs, got %d", n)
	}
	if n := logs.FilterLevelExact(zapcore.DebugLevel).Len(); n != 1 {
		t.Fatalf("expected one debug log, got %d", n)
	}
}

func TestDoExhaustedRetriesLogError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	_ = Do(context.Background(), zap.New(core), fastPolicy, "cache.get", "s-4", func() error {
		return transientError{}
	})
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Fatalf("expected one error-level log, got %d", n)
	}
	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 2 {
		t.Fatalf("expected two transient warnings, got %d", n)
	}
}
