// Package retry paces repeated socket operations: exponential backoff
// for binds and requests, and a circuit breaker over consecutive
// receive failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError marks a failure that another attempt cannot fix, such
// as a malformed endpoint or a terminated socket context.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that [Backoff.Do] returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff describes an exponential retry schedule.  The zero value is
// usable and retries forever, starting at 100ms and capped at 5s.
type Backoff struct {
	// InitialDelay is the wait after the first failure (default 100ms).
	InitialDelay time.Duration
	// MaxDelay caps the wait between attempts (default 5s).
	MaxDelay time.Duration
	// Multiplier grows the wait after each failure (default 2.0).
	Multiplier float64
	// MaxAttempts counts every try including the first.  0 means no
	// limit; the loop then ends only through the context.
	MaxAttempts int
	// Jitter spreads each wait by ±25%.
	Jitter bool
}

// BindBackoff is the schedule the listener uses while a requested port
// stays unavailable.  It never gives up: a newer port request or a
// stop ends the wait instead.
func BindBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RequestBackoff is the schedule a requester uses when the bridge is
// not reachable yet.
func RequestBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

func (b *Backoff) params() (initial, maxDelay time.Duration, mult float64) {
	initial = b.InitialDelay
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay = b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	mult = b.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	return initial, maxDelay, mult
}

// Delay returns the wait after the given failed attempt (1-based).
// Callers that must wake on events other than the timer, such as the
// listener, use Delay with their own select instead of [Backoff.Do].
func (b *Backoff) Delay(attempt int) time.Duration {
	initial, maxDelay, mult := b.params()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if d > float64(maxDelay) || math.IsInf(d, 0) {
		d = float64(maxDelay)
	}
	wait := time.Duration(d)
	if b.Jitter {
		wait = addJitter(wait)
	}
	return wait
}

// Exhausted reports whether attempt used up the retry budget.
func (b *Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}

// Do calls fn until it returns nil, returns a [Permanent] error, the
// attempt budget runs out, or ctx is done.  attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.Exhausted(attempt) {
			return fmt.Errorf("max retries (%d) exceeded: %w", b.MaxAttempts, err)
		}

		t := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// addJitter spreads d by ±25%, never below one millisecond.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
