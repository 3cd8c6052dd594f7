package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffConfig contains configuration for bounded retries
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`
	Jitter       bool          `json:"jitter" yaml:"jitter"`
}

// DefaultBackoffConfig returns an exponential configuration for storage operations
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// FixedConfig returns a policy of attempts tries separated by a constant delay.
func FixedConfig(attempts int, delay time.Duration) BackoffConfig {
	return BackoffConfig{
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
		MaxAttempts:  attempts,
	}
}

// Backoff implements bounded retries with exponential delay and optional jitter
type Backoff struct {
	config BackoffConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewBackoff creates a new backoff instance
func NewBackoff(config BackoffConfig) *Backoff {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1.0 {
		config.Multiplier = 1.0
	}
	return &Backoff{
		config: config,
		sleep:  sleepContext,
	}
}

// MaxAttempts returns the configured attempt budget.
func (b *Backoff) MaxAttempts() int {
	return b.config.MaxAttempts
}

// Retry executes the operation until it succeeds or the attempt budget is spent.
// The last operation error is returned on exhaustion.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	_, err := b.Do(ctx, func(context.Context) error { return operation() }, nil)
	return err
}

// RetryWithPredicate stops early when isRetryable reports false for an error.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	_, err := b.Do(ctx, func(context.Context) error { return operation() }, isRetryable)
	return err
}

// Do runs operation and reports how many attempts were made, including the
// successful one. A nil isRetryable treats every error as retryable.
func (b *Backoff) Do(ctx context.Context, operation func(ctx context.Context) error, isRetryable func(error) bool) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := operation(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return attempt, err
		}

		// Don't wait after the last attempt
		if attempt == b.config.MaxAttempts {
			break
		}

		if err := b.sleep(ctx, b.calculateDelay(attempt)); err != nil {
			return attempt, err
		}
	}

	return b.config.MaxAttempts, lastErr
}

// calculateDelay computes the delay for the given attempt with exponential backoff and optional jitter
func (b *Backoff) calculateDelay(attempt int) time.Duration {
	delay := float64(b.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.config.Multiplier
	}

	if b.config.MaxDelay > 0 && delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	// ±25% randomness
	if b.config.Jitter {
		jitter := delay * 0.25
		delay += (secureFloat64() - 0.5) * 2 * jitter

		if delay < 0 {
			delay = float64(b.config.InitialDelay)
		}
		if b.config.MaxDelay > 0 && delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// GetNextDelay returns the delay that would be used for the given attempt
func (b *Backoff) GetNextDelay(attempt int) time.Duration {
	return b.calculateDelay(attempt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// secureFloat64 generates a cryptographically secure float64 between 0 and 1
func secureFloat64() float64 {
	max := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Uint64()) / float64(math.MaxUint64)
}
