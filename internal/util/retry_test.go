package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name      string
		maxTries  int
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{name: "success after retries", maxTries: 3, failures: 2, wantCalls: 3},
		{name: "persistent failure", maxTries: 3, failures: 10, wantCalls: 3, wantErr: true},
		{name: "zero tries still calls once", maxTries: 0, failures: 10, wantCalls: 1, wantErr: true},
		{name: "negative tries still calls once", maxTries: -1, failures: 0, wantCalls: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			got, err := RetryWithBackoff(context.Background(), tc.maxTries, 0, func(context.Context) (int, error) {
				calls++
				if calls <= tc.failures {
					return 0, errors.New("transient")
				}
				return 99, nil
			})
			if calls != tc.wantCalls {
				t.Fatalf("expected %d calls, got %d", tc.wantCalls, calls)
			}
			if tc.wantErr {
				if err == nil || err.Error() != "transient" {
					t.Fatalf("expected last error, got %v", err)
				}
				return
			}
			if err != nil || got != 99 {
				t.Fatalf("got (%d, %v)", got, err)
			}
		})
	}
}

func TestRetryWithBackoff_StopsOnContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithBackoff(ctx, 5, 0, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancel after 1 call, got %v after %d", err, calls)
	}

	calls = 0
	_, err = RetryWithBackoff(context.Background(), 5, 0, func(context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) || calls != 1 {
		t.Fatalf("expected no retry on deadline error, got %v after %d", err, calls)
	}
}

func TestRetryWithBackoff_Permanent(t *testing.T) {
	base := errors.New("bad request")
	calls := 0
	_, err := RetryWithBackoff(context.Background(), 5, time.Second, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(base)
	})
	if err != base {
		t.Fatalf("expected unwrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
	if !IsPermanent(Permanent(base)) || IsPermanent(base) {
		t.Fatal("IsPermanent() mismatch")
	}
}

func TestRetryWithBackoff_WaitsBetweenAttempts(t *testing.T) {
	start := time.Now()
	calls := 0
	_, err := RetryWithBackoff(context.Background(), 3, 5*time.Millisecond, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 failed calls, got %d (%v)", calls, err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("expected at least 15ms of backoff, got %s", elapsed)
	}
}

func TestRetryWithBackoff_CancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := RetryWithBackoff(ctx, 5, time.Second, func(context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
