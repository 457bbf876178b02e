package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDoValue_SucceedsFirstAttempt(t *testing.T) {
	p := DefaultPolicy()
	calls := 0

	got, err := DoValue(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestDoValue_SucceedsAfterRetries(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	calls := 0

	got, err := DoValue(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestDoValue_ExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond}
	boom := errors.New("boom")
	calls := 0

	_, err := DoValue(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	}, nil)

	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !errors.Is(err, boom) {
		t.Errorf("exhaustion error should wrap the last error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("op called %d times, want 2", calls)
	}
}

func TestDoValue_NonRetryableStopsImmediately(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}
	permanent := errors.New("permanent")
	calls := 0

	_, err := DoValue(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	}, func(err error) bool { return false })

	if !errors.Is(err, permanent) {
		t.Errorf("expected the permanent error unwrapped, got %v", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestDoValue_ContextCanceledDuringWait(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialDelay: 10 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := DoValue(ctx, p, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("wait did not abort on cancel, took %s", elapsed)
	}
}

func TestDoValue_ZeroAttemptsTreatedAsOne(t *testing.T) {
	p := Policy{MaxAttempts: 0}
	calls := 0

	_, err := DoValue(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("always fails")
	}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestDo_WrapsDoValue(t *testing.T) {
	p := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("op called %d times, want 2", calls)
	}
}
