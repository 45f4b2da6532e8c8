package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, Multiplier: 1.0}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAndWrapsLastError(t *testing.T) {
	sentinel := errors.New("still busy")
	attempts := 0
	err := Retry(fastConfig(), func() error {
		attempts++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, sentinel)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	sentinel := errors.New("bad input")
	attempts := 0
	err := Retry(fastConfig(), func() error {
		attempts++
		return &Permanent{Err: sentinel}
	})
	assert.Equal(t, 1, attempts)
	// The marker is stripped; callers see the underlying error.
	assert.Equal(t, sentinel, err)
}

func TestPermanentWrappedDeepStillStops(t *testing.T) {
	inner := &Permanent{Err: errors.New("fatal")}
	attempts := 0
	err := Retry(fastConfig(), func() error {
		attempts++
		return inner
	})
	assert.Equal(t, 1, attempts)
	assert.Equal(t, inner.Err, err)
}
