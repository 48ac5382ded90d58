package tts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retrying re-issues failed requests with exponential backoff. Each attempt
// runs under its own timeout.
type Retrying struct {
	next     Synthesizer
	maxTries uint
	timeout  time.Duration
	initial  time.Duration
	logger   *slog.Logger
}

func NewRetrying(next Synthesizer, maxRetries int, timeout time.Duration, logger *slog.Logger) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		next:     next,
		maxTries: uint(maxRetries) + 1,
		timeout:  timeout,
		initial:  500 * time.Millisecond,
		logger:   logger.With(slog.String("component", "tts-retry")),
	}
}

func (r *Retrying) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		data, err := r.next.Synthesize(callCtx, req)
		if err != nil && !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initial
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("speech synthesis failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()))
		}),
	)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrEmptyText) || errors.Is(err, ErrInvalidRate) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}
	return true
}
