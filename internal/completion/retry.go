package completion

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"memlayer/internal/memerrors"
)

// RetryConfig parameterizes exponential-backoff retry for any completion
// call.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfig holds the out-of-the-box retry.* defaults.
//
//nolint:gochecknoglobals // configuration default, acceptable as package default
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   5,
	InitialDelay:  1 * time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// shouldRetry classifies an error using the blocklist approach: retry
// everything a *memerrors.Error marks as IsRetryable, and otherwise default
// to retrying unclassified errors (transport failures surface as generic
// errors and still deserve a retry attempt).
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var classified *memerrors.Error
	if errors.As(err, &classified) {
		return classified.IsRetryable()
	}
	return true
}

func (c RetryConfig) delayFor(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-2)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter && delay > 0 {
		jitter := time.Duration(rand.Int63n(int64(delay) / 5)) //nolint:gosec // timing jitter, not security-sensitive
		delay += jitter
	}
	return delay
}

// RetryMiddleware retries Complete/CompleteStructured/CompleteWithFunctions
// calls under exponential backoff on a 5xx or rate-limit response.
func RetryMiddleware(cfg RetryConfig) Middleware {
	return func(next Provider) Provider {
		return WrapProvider(next.Name(), next,
			func(ctx context.Context, req Request) (Response, error) {
				var resp Response
				var err error
				for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
					if d := cfg.delayFor(attempt); d > 0 {
						if werr := waitOrCancel(ctx, d); werr != nil {
							return Response{}, werr
						}
					}
					resp, err = next.Complete(ctx, req)
					if err == nil || !shouldRetry(err) {
						return resp, err
					}
				}
				return resp, memerrors.Wrap(memerrors.KindLLM, err, "exhausted retry attempts")
			},
			func(ctx context.Context, req Request, schema Schema) (string, error) {
				var raw string
				var err error
				for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
					if d := cfg.delayFor(attempt); d > 0 {
						if werr := waitOrCancel(ctx, d); werr != nil {
							return "", werr
						}
					}
					raw, err = next.CompleteStructured(ctx, req, schema)
					if err == nil || !shouldRetry(err) {
						return raw, err
					}
				}
				return raw, memerrors.Wrap(memerrors.KindLLM, err, "exhausted retry attempts")
			},
			func(ctx context.Context, req Request, fns []FunctionDefinition) (FunctionCallResult, error) {
				var result FunctionCallResult
				var err error
				for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
					if d := cfg.delayFor(attempt); d > 0 {
						if werr := waitOrCancel(ctx, d); werr != nil {
							return FunctionCallResult{}, werr
						}
					}
					result, err = next.CompleteWithFunctions(ctx, req, fns)
					if err == nil || !shouldRetry(err) {
						return result, err
					}
				}
				return result, memerrors.Wrap(memerrors.KindLLM, err, "exhausted retry attempts")
			},
		)
	}
}

// waitOrCancel sleeps for d, returning a cancelled memerrors.Error if ctx is
// cancelled first.
func waitOrCancel(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return memerrors.Wrap(memerrors.KindCancelled, ctx.Err(), "retry wait cancelled")
	}
}
