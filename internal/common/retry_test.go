package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func fastRetryPolicy() *RetryPolicy {
	p := NewRetryPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond
	return p
}

func TestShouldRetry(t *testing.T) {
	p := NewRetryPolicy()

	tests := []struct {
		name       string
		attempt    int
		statusCode int
		err        error
		want       bool
	}{
		{"retryable status", 0, 503, nil, true},
		{"rate limited", 1, 429, nil, true},
		{"client error", 0, 404, nil, false},
		{"auth failure", 0, 401, nil, false},
		{"attempts exhausted", 3, 503, nil, false},
		{"deadline exceeded", 0, 0, context.DeadlineExceeded, true},
		{"plain error", 0, 0, errors.New("boom"), false},
		{"no status no error", 0, 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.attempt, tt.statusCode, tt.err))
		})
	}
}

func TestCalculateBackoffBounds(t *testing.T) {
	p := NewRetryPolicy()

	for attempt := 0; attempt < 10; attempt++ {
		backoff := p.CalculateBackoff(attempt)
		assert.Greater(t, backoff, time.Duration(0))
		// MaxBackoff plus the 25% jitter ceiling.
		assert.LessOrEqual(t, backoff, p.MaxBackoff+p.MaxBackoff/4)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	p := fastRetryPolicy()
	calls := 0

	err := p.Execute(context.Background(), arbor.NewLogger(), func() error {
		calls++
		if calls < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	p := fastRetryPolicy()
	calls := 0
	boom := fmt.Errorf("schema mismatch")

	err := p.Execute(context.Background(), arbor.NewLogger(), func() error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithStatusRetriesServerErrors(t *testing.T) {
	p := fastRetryPolicy()
	calls := 0

	status, err := p.ExecuteWithStatus(context.Background(), arbor.NewLogger(), func() (int, error) {
		calls++
		if calls < 2 {
			return 503, fmt.Errorf("service unavailable")
		}
		return 200, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, 2, calls)
}

func TestExecuteWithStatusFailsFastOnClientError(t *testing.T) {
	p := fastRetryPolicy()
	calls := 0

	status, err := p.ExecuteWithStatus(context.Background(), arbor.NewLogger(), func() (int, error) {
		calls++
		return 401, fmt.Errorf("authentication error")
	})

	require.Error(t, err)
	assert.Equal(t, 401, status)
	assert.Equal(t, 1, calls)
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	p := fastRetryPolicy()
	p.InitialBackoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())

	err := p.Execute(ctx, arbor.NewLogger(), func() error {
		cancel()
		return context.DeadlineExceeded
	})

	require.ErrorIs(t, err, context.Canceled)
}
