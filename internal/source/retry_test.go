package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/livetemplate/mathwalk/internal/logging"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestWithRetrySuccess(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), logging.Discard(), "a.py", fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "ok", result)
}

func TestWithRetryRetryableError(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), logging.Discard(), "a.py", fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		return "", &SourceError{Ref: "a.py", Operation: "request", Err: errors.New("timeout"), Retryable: true}
	})

	assert.Error(t, err)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")

	var sourceErr *SourceError
	if assert.ErrorAs(t, err, &sourceErr) {
		assert.False(t, sourceErr.IsRetryable(), "exhausted errors are no longer retryable")
	}
}

func TestWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), logging.Discard(), "a.py", fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &HTTPError{Ref: "a.py", StatusCode: 503}
		}
		return "third time", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "third time", result)
	assert.Equal(t, 3, calls)
}

func TestWithRetryNonRetryable(t *testing.T) {
	for _, fail := range []error{
		&NotFoundError{Ref: "a.py"},
		&ValidationError{Ref: "a.py", Reason: "bad"},
		&HTTPError{Ref: "a.py", StatusCode: 400},
	} {
		calls := 0
		_, err := WithRetry(context.Background(), logging.Discard(), "a.py", fastRetry(), func(ctx context.Context) (string, error) {
			calls++
			return "", fail
		})
		assert.ErrorIs(t, err, fail)
		assert.Equal(t, 1, calls, "%T must not be retried", fail)
	}
}

func TestWithRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := WithRetry(ctx, logging.Discard(), "a.py", fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		return "", nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestCalculateDelayCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 200 * time.Millisecond, Multiplier: 2}
	for attempt := 0; attempt < 6; attempt++ {
		d := calculateDelay(attempt, cfg)
		assert.LessOrEqual(t, d, 240*time.Millisecond)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
	}
}
