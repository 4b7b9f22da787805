package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/retry"
)

func TestPolicy_Delay(t *testing.T) {
	const ms = time.Millisecond

	tests := []struct {
		name   string
		policy retry.Policy
		n      int
		want   time.Duration
	}{
		{"first call never waits", retry.Policy{Backoff: retry.BackoffLinear, InitialDelay: 100 * ms}, 0, 0},
		{"fixed", retry.Policy{Backoff: retry.BackoffFixed, InitialDelay: 100 * ms, MaxDelay: time.Second}, 4, 100 * ms},
		{"linear first retry", retry.Policy{Backoff: retry.BackoffLinear, InitialDelay: 100 * ms, MaxDelay: time.Second}, 1, 100 * ms},
		{"linear third retry", retry.Policy{Backoff: retry.BackoffLinear, InitialDelay: 100 * ms, MaxDelay: time.Second}, 3, 300 * ms},
		{"linear capped", retry.Policy{Backoff: retry.BackoffLinear, InitialDelay: 400 * ms, MaxDelay: time.Second}, 5, time.Second},
		{"exponential third retry", retry.Policy{Backoff: retry.BackoffExponential, InitialDelay: 100 * ms, MaxDelay: 10 * time.Second}, 3, 400 * ms},
		{"default run creation", retry.RunCreationPolicy(), 2, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.n))
		})
	}
}

func TestPolicy_DelayJitterStaysInBounds(t *testing.T) {
	p := retry.Policy{Backoff: retry.BackoffFixed, InitialDelay: 100 * time.Millisecond, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	policy := retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond, Backoff: retry.BackoffLinear}

	calls := 0
	got, err := retry.Do(context.Background(), policy, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", errors.New("temporary")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	policy := retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond}
	lastErr := errors.New("still down")

	calls := 0
	_, err := retry.Do(context.Background(), policy, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, lastErr
	})

	assert.ErrorIs(t, err, lastErr)
	assert.Equal(t, policy.Attempts(), calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	policy := retry.Policy{MaxRetries: 5, InitialDelay: time.Millisecond}
	badRequest := errors.New("bad request")

	calls := 0
	_, err := retry.Do(context.Background(), policy, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, retry.Permanent(badRequest)
	})

	assert.Same(t, badRequest, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Policy{MaxRetries: 3, InitialDelay: time.Hour}

	_, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (int, error) {
		cancel()
		return 0, errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, retry.Permanent(nil))
}
