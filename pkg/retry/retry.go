// pkg/retry/retry.go - functions for retrying actions with exponential backoff.

package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/windowsadmins/appdeploy/pkg/logging"
)

// Permanent wraps an error that must not be retried. Retry stops immediately
// and returns the wrapped error.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// RetryConfig defines the configuration for retry attempts
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultConfig is tuned for transient file-in-use contention: a handful of
// attempts over a few seconds, not minutes.
func DefaultConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      4,
		InitialInterval: 250 * time.Millisecond,
		Multiplier:      2.0,
	}
}

// Retry retries a given function with exponential backoff
func Retry(config RetryConfig, action func() error) error {
	interval := config.InitialInterval

	var lastErr error
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		err := action()
		if err == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err

		if attempt < config.MaxRetries {
			logging.Warn("Attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", config.MaxRetries,
				"retry_delay", interval.String(),
				"error", err.Error())
			time.Sleep(interval)
			interval = time.Duration(float64(interval) * config.Multiplier)
		}
	}

	return fmt.Errorf("action failed after %d attempts: %w", config.MaxRetries, lastErr)
}
