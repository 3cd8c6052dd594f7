package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordSleeps replaces the real sleep so tests observe delays without waiting.
func recordSleeps(b *Backoff) *[]time.Duration {
	var slept []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return &slept
}

func TestBackoff_DefaultConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	if config.InitialDelay != 100*time.Millisecond {
		t.Errorf("Expected initial delay of 100ms, got %v", config.InitialDelay)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Expected multiplier of 2.0, got %v", config.Multiplier)
	}
	if config.MaxAttempts != 5 {
		t.Errorf("Expected max attempts of 5, got %v", config.MaxAttempts)
	}
}

func TestBackoff_SuccessFirstAttempt(t *testing.T) {
	backoff := NewBackoff(FixedConfig(3, 2*time.Second))
	slept := recordSleeps(backoff)

	attempts, err := backoff.Do(context.Background(), func(context.Context) error { return nil }, nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no sleeps, got %v", *slept)
	}
}

func TestBackoff_FixedPolicySucceedsOnThirdAttempt(t *testing.T) {
	backoff := NewBackoff(FixedConfig(3, 2*time.Second))
	slept := recordSleeps(backoff)

	calls := 0
	attempts, err := backoff.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(*slept) != 2 {
		t.Fatalf("Expected 2 sleeps, got %d", len(*slept))
	}
	for _, d := range *slept {
		if d != 2*time.Second {
			t.Errorf("Expected fixed 2s delay, got %v", d)
		}
	}
}

func TestBackoff_ExhaustionReturnsLastError(t *testing.T) {
	backoff := NewBackoff(FixedConfig(3, time.Second))
	recordSleeps(backoff)

	calls := 0
	attempts, err := backoff.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("failure " + string(rune('0'+calls)))
	}, nil)

	if calls != 3 {
		t.Errorf("Expected exactly 3 calls, got %d", calls)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts reported, got %d", attempts)
	}
	if err == nil || err.Error() != "failure 3" {
		t.Errorf("Expected last error 'failure 3', got %v", err)
	}
}

func TestBackoff_ContextCancellation(t *testing.T) {
	backoff := NewBackoff(FixedConfig(5, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- backoff.Retry(ctx, func() error {
			calls++
			return errors.New("always fails")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not observe cancellation")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}

func TestBackoff_ExponentialIncrease(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
	})

	expected := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond}
	for i, want := range expected {
		if got := backoff.GetNextDelay(i + 1); got != want {
			t.Errorf("Attempt %d: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestBackoff_MaxDelayConstraint(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     150 * time.Millisecond,
		Multiplier:   10.0,
		MaxAttempts:  4,
	})

	if got := backoff.GetNextDelay(3); got != 150*time.Millisecond {
		t.Errorf("Expected delay capped at 150ms, got %v", got)
	}
}

func TestBackoff_WithPredicate_NonRetryableError(t *testing.T) {
	backoff := NewBackoff(FixedConfig(5, time.Millisecond))
	recordSleeps(backoff)

	fatal := errors.New("fatal")
	calls := 0
	err := backoff.RetryWithPredicate(context.Background(), func() error {
		calls++
		return fatal
	}, func(err error) bool { return !errors.Is(err, fatal) })

	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestBackoff_WithJitterStaysInBounds(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       true,
	})

	for i := 0; i < 50; i++ {
		d := backoff.GetNextDelay(2)
		if d < 150*time.Millisecond || d > 250*time.Millisecond {
			t.Fatalf("Jittered delay %v outside ±25%% of 200ms", d)
		}
	}
}

func TestNewBackoff_ClampsInvalidConfig(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{MaxAttempts: 0, Multiplier: 0})

	if backoff.MaxAttempts() != 1 {
		t.Errorf("Expected attempts clamped to 1, got %d", backoff.MaxAttempts())
	}
}
