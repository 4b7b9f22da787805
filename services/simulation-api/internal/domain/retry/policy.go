// Package retry bounds how often a failing provider call is repeated.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Backoff selects how the delay grows between attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// Policy allows MaxRetries repeats after the first call.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Backoff      Backoff
	// Jitter spreads each delay by up to +/- Jitter of itself (0..1).
	Jitter float64
}

// RunCreationPolicy is the default for starting a streaming run: four calls
// in total, one second apart and growing linearly.
func RunCreationPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Backoff:      BackoffLinear,
	}
}

// Attempts is the total number of calls the policy allows.
func (p Policy) Attempts() int {
	return p.MaxRetries + 1
}

// Delay returns the pause before retry n, counting from 1.
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	d := p.InitialDelay
	switch p.Backoff {
	case BackoffLinear:
		d *= time.Duration(n)
	case BackoffExponential:
		d <<= uint(n - 1)
	}
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
		d = max(d, 0)
	}
	return d
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth repeating. Do returns the inner error
// straight away.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, runs out of
// attempts, or ctx ends. attempt is 0 for the first call. The last error is
// returned on exhaustion.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt >= p.MaxRetries {
			return zero, err
		}
		if err := sleep(ctx, p.Delay(attempt+1)); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
