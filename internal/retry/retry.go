// Package retry re-attempts fallible operations with bounded attempts and
// linear backoff. It keeps two failure channels apart: a hard failure
// (returned error or panic) aborts with an error once attempts are
// exhausted, while a soft failure (the incomplete predicate matching a
// returned value) retries but ultimately passes the last value through
// without error. Callers encode "not yet" as a sentinel return and
// reserve errors for failures worth surfacing.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 750 * time.Millisecond
)

// Options bounds the retry loop.
type Options struct {
	Attempts int
	Delay    time.Duration
}

// DefaultOptions is the stock policy for external side effects.
var DefaultOptions = Options{Attempts: DefaultAttempts, Delay: DefaultDelay}

func (o Options) normalized() Options {
	if o.Attempts < 1 {
		o.Attempts = DefaultAttempts
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	return o
}

// Do runs op up to opts.Attempts times, waiting opts.Delay × attempt
// between tries. op receives the 1-based attempt number. A non-nil
// incomplete predicate classifies a returned value as not-yet-successful;
// such a value is retried, but on the final attempt it is returned as-is
// with a nil error. Errors (and panics, normalized into errors) are
// swallowed until the final attempt, then surfaced.
func Do[T any](ctx context.Context, opts Options, op func(attempt int) (T, error), incomplete func(T) bool) (T, error) {
	opts = opts.normalized()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := run(op, attempt)

		if err == nil && (incomplete == nil || !incomplete(v)) {
			return v, nil
		}

		if attempt >= opts.Attempts {
			if err != nil {
				return zero, fmt.Errorf("after %d attempts: %w", attempt, err)
			}
			// Soft failure exhausted: the last value stands.
			return v, nil
		}

		if err := sleep(ctx, opts.Delay*time.Duration(attempt)); err != nil {
			return zero, err
		}
	}
}

// run executes one attempt, converting a panic into an ordinary error so
// one bad attempt cannot take down the caller.
func run[T any](op func(attempt int) (T, error), attempt int) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = normalize(r)
		}
	}()
	return op(attempt)
}

// normalize turns an arbitrary panic value into an error: errors pass
// through, strings are wrapped, anything else is JSON-encoded with a
// fixed fallback when encoding fails.
func normalize(r interface{}) error {
	switch v := r.(type) {
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return errors.New("operation failed with unserializable value")
		}
		return errors.New(string(b))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
