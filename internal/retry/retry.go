// Package retry runs bounded, cancellable retry loops.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted is returned by Poll when the condition never held.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	// Retryable, when set, stops the loop early on errors it rejects.
	Retryable func(error) bool
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}
}

// Do executes fn with the default config.
func Do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return DoWithConfig(ctx, DefaultConfig(), fn)
}

// DoWithConfig executes fn until it succeeds, the attempts run out or ctx is
// done. Waits grow by Multiplier up to MaxWait.
func DoWithConfig[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	var err error

	wait := cfg.InitialWait
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt == cfg.MaxAttempts || (cfg.Retryable != nil && !cfg.Retryable(err)) {
			break
		}
		if !sleep(ctx, wait) {
			return result, ctx.Err()
		}
		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}
	return result, err
}

// Poll checks cond every interval, at most attempts times.
func Poll(ctx context.Context, interval time.Duration, attempts int, cond func() bool) error {
	for i := 0; i < attempts; i++ {
		if cond() {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !sleep(ctx, interval) {
			return ctx.Err()
		}
	}
	return ErrExhausted
}

// Backoff computes reconnect delays: exponential in the attempt count with
// up to 50% jitter of the base delay, capped at Max. A connection that lived
// longer than Stable resets the count.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Stable time.Duration

	attempt     int
	connectedAt time.Time
}

// Connected records a successful connection.
func (b *Backoff) Connected() {
	b.connectedAt = time.Now()
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	if !b.connectedAt.IsZero() && b.Stable > 0 && time.Since(b.connectedAt) > b.Stable {
		b.attempt = 0
	}
	b.connectedAt = time.Time{}
	jitter := rand.Float64() * float64(b.Base) * 0.5
	delay := math.Min(float64(b.Base)*math.Pow(2, float64(b.attempt))+jitter, float64(b.Max))
	b.attempt++
	return time.Duration(delay)
}

// Attempts returns how many delays were handed out since the last reset.
func (b *Backoff) Attempts() int { return b.attempt }

// Sleep waits d or until ctx is done. It reports whether the full wait
// elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
