package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/etoile/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyOp fails the first failures calls with err, then succeeds.
func flakyOp(failures int, err error) (op func() error, calls *int) {
	calls = new(int)
	return func() error {
		*calls++
		if *calls <= failures {
			return err
		}
		return nil
	}, calls
}

func TestRetryWithBackoff(t *testing.T) {
	rateLimited := errors.New("429 too many requests")

	tests := []struct {
		name        string
		failures    int
		err         error
		maxAttempts int
		wantErr     error
		wantCalls   int
	}{
		{"first try", 0, rateLimited, 3, nil, 1},
		{"recovers on third attempt", 2, rateLimited, 5, nil, 3},
		{"gives up after max attempts", 10, rateLimited, 3, rateLimited, 3},
		{"model unavailable is fatal", 10, fmt.Errorf("load weights: %w", ai.ErrModelUnavailable), 5, ai.ErrModelUnavailable, 1},
		{"operation cancelled is fatal", 10, fmt.Errorf("embed: %w", context.Canceled), 5, context.Canceled, 1},
		{"zero attempts", 10, rateLimited, 0, ErrInvalidMaxAttempts, 0},
		{"negative attempts", 10, rateLimited, -2, ErrInvalidMaxAttempts, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, calls := flakyOp(tt.failures, tt.err)
			err := RetryWithBackoff(context.Background(), op, tt.maxAttempts, time.Millisecond)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}

func TestRetryWithBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("connection reset")
	}

	err := RetryWithBackoff(ctx, op, 10, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestRetryWithBackoff_StopsOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	op := func() error {
		calls++
		time.Sleep(30 * time.Millisecond)
		return errors.New("slow model")
	}

	err := RetryWithBackoff(ctx, op, 10, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.LessOrEqual(t, calls, 3)
}

func TestRetryWithBackoff_DelayDoubles(t *testing.T) {
	var gaps []time.Duration
	last := time.Now()
	op, calls := flakyOp(3, errors.New("busy"))
	timed := func() error {
		if *calls > 0 {
			gaps = append(gaps, time.Since(last))
		}
		last = time.Now()
		return op()
	}

	require.NoError(t, RetryWithBackoff(context.Background(), timed, 5, 10*time.Millisecond))
	assert.Equal(t, 4, *calls)
	require.Len(t, gaps, 3)
	assert.GreaterOrEqual(t, gaps[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[2], 40*time.Millisecond)
}
