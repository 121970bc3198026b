package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Backoff int

const (
	// BackoffLinear waits Delay * attempt between tries.
	BackoffLinear Backoff = iota
	// BackoffExponential doubles the delay after each try.
	BackoffExponential
)

type Config struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Backoff     Backoff
	// RetryIf reports whether an error is worth another try. Nil means
	// every error is retryable.
	RetryIf func(error) bool
	Logger  *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 2,
		Delay:       time.Second,
		MaxDelay:    10 * time.Second,
		Backoff:     BackoffLinear,
		Logger:      zap.NewNop(),
	}
}

func Do(ctx context.Context, cfg Config, operation func() error) error {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.Delay == 0 {
		cfg.Delay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 10 * time.Second
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.Debug("Error not retryable",
					zap.Error(err),
					zap.Int("attempt", attempt),
				)
			}
			return err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay * time.Duration(attempt)
		if cfg.Backoff == BackoffExponential {
			delay = cfg.Delay << (attempt - 1)
		}
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		if cfg.Logger != nil {
			cfg.Logger.Warn("Operation failed, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxAttempts),
				zap.Duration("delay", delay),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func DoWithResult[T any](ctx context.Context, cfg Config, operation func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = operation()
		return err
	})
	return result, err
}
