package util

import (
	"context"
	"errors"
	"time"
)

const maxRetryDelay = 10 * time.Second

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The retry helpers return the
// wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func unwrapPermanent(err error) error {
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

// RetryWithBackoff calls fn up to maxTries times (at least once) until it
// succeeds. The delay between attempts starts at base, doubles and is
// capped at ten seconds; base 0 retries immediately. Context errors and
// errors marked with Permanent stop the loop.
func RetryWithBackoff[T any](
	ctx context.Context,
	maxTries int,
	base time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	delay := base
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if IsPermanent(err) {
			return zero, unwrapPermanent(err)
		}
		lastErr = err

		if delay > 0 && i < maxTries-1 {
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}
	}
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
