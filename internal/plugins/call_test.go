package plugins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Netflix/dispatch-sub003/internal/errs"
)

func TestCall_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Call(context.Background(), "test.op", time.Second, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestCall_RetriesTransientFailures(t *testing.T) {
	calls := 0
	err := Call(context.Background(), "test.op", time.Second, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.NewPluginError("fake", "rate limited", true, nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestCall_PermanentFailureNoRetry(t *testing.T) {
	calls := 0
	permanent := errs.NewPluginError("fake", "name taken", false, nil)
	err := Call(context.Background(), "test.op", time.Second, func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestCall_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Call(context.Background(), "test.op", time.Second, func(ctx context.Context) error {
		calls++
		return errs.NewPluginError("fake", "still failing", true, nil)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != maxAttempts {
		t.Errorf("expected %d calls, got %d", maxAttempts, calls)
	}
}

func TestCall_TimeoutSurfacesAsTimeoutError(t *testing.T) {
	err := Call(context.Background(), "slow.op", 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	var te *errs.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Op != "slow.op" {
		t.Errorf("op = %s, want slow.op", te.Op)
	}
}
