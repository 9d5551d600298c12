package completion

import (
	"context"
	"errors"
	"sync"
	"time"

	"memlayer/internal/memerrors"
	"memlayer/internal/metrics"
)

const rateLimitDrainPause = 100 * time.Millisecond

// gate is a single provider's process-wide rate-limit state: a FIFO of
// parked callers, released serially once resetAt has passed.
type gate struct {
	mu       sync.Mutex
	resetAt  time.Time
	waiters  []chan struct{}
	draining bool
}

// acquire blocks until the gate is open (resetAt has passed and this
// caller has been admitted in FIFO order), or ctx is cancelled first.
func (g *gate) acquire(ctx context.Context) error {
	g.mu.Lock()
	if time.Now().After(g.resetAt) {
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	if !g.draining {
		g.draining = true
		go g.drain()
	}
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return memerrors.Wrap(memerrors.KindCancelled, ctx.Err(), "rate-limit wait cancelled")
	}
}

// drain releases parked callers one at a time, pacing admissions by
// rateLimitDrainPause once the reset window has elapsed.
func (g *gate) drain() {
	for {
		g.mu.Lock()
		now := time.Now()
		if now.Before(g.resetAt) {
			wait := g.resetAt.Sub(now)
			g.mu.Unlock()
			time.Sleep(wait)
			continue
		}
		if len(g.waiters) == 0 {
			g.draining = false
			g.mu.Unlock()
			return
		}
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.mu.Unlock()

		close(next)
		time.Sleep(rateLimitDrainPause)
	}
}

// park sets (or extends) the process-wide reset time for this provider.
func (g *gate) park(retryAfter time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	newReset := time.Now().Add(retryAfter)
	if newReset.After(g.resetAt) {
		g.resetAt = newReset
	}
}

// gateRegistry holds one gate per provider name, a shared, name-keyed
// map of per-provider limiter state.
//
//nolint:gochecknoglobals // process-wide rate-limit state, shared across all callers to a provider
var (
	gateRegistry   = map[string]*gate{}
	gateRegistryMu sync.Mutex
)

func gateFor(provider string) *gate {
	gateRegistryMu.Lock()
	defer gateRegistryMu.Unlock()
	g, ok := gateRegistry[provider]
	if !ok {
		g = &gate{}
		gateRegistry[provider] = g
	}
	return g
}

const maxReparkAttempts = 6

// RateLimitMiddleware enforces a process-wide FIFO rate-limit queue: on a
// rate_limit error, park subsequent calls to this provider until the reset
// time, then drain them serially.
func RateLimitMiddleware() Middleware {
	return RateLimitMiddlewareWithRecorder(metrics.Nop())
}

// RateLimitMiddlewareWithRecorder is RateLimitMiddleware instrumented with a
// metrics.Recorder: every park (i.e. every throttled request) increments
// IncRateLimitThrottle for this provider.
func RateLimitMiddlewareWithRecorder(recorder metrics.Recorder) Middleware {
	return func(next Provider) Provider {
		g := gateFor(next.Name())
		park := func(d time.Duration) {
			g.park(d)
			recorder.IncRateLimitThrottle(next.Name())
		}
		return WrapProvider(next.Name(), next,
			func(ctx context.Context, req Request) (Response, error) {
				var resp Response
				var err error
				for attempt := 0; attempt < maxReparkAttempts; attempt++ {
					if werr := g.acquire(ctx); werr != nil {
						return Response{}, werr
					}
					resp, err = next.Complete(ctx, req)
					var rl *memerrors.Error
					if errors.As(err, &rl) && rl.Kind == memerrors.KindRateLimit {
						park(rl.RetryAfter)
						continue
					}
					return resp, err
				}
				return resp, err
			},
			func(ctx context.Context, req Request, schema Schema) (string, error) {
				var raw string
				var err error
				for attempt := 0; attempt < maxReparkAttempts; attempt++ {
					if werr := g.acquire(ctx); werr != nil {
						return "", werr
					}
					raw, err = next.CompleteStructured(ctx, req, schema)
					var rl *memerrors.Error
					if errors.As(err, &rl) && rl.Kind == memerrors.KindRateLimit {
						park(rl.RetryAfter)
						continue
					}
					return raw, err
				}
				return raw, err
			},
			func(ctx context.Context, req Request, fns []FunctionDefinition) (FunctionCallResult, error) {
				var result FunctionCallResult
				var err error
				for attempt := 0; attempt < maxReparkAttempts; attempt++ {
					if werr := g.acquire(ctx); werr != nil {
						return FunctionCallResult{}, werr
					}
					result, err = next.CompleteWithFunctions(ctx, req, fns)
					var rl *memerrors.Error
					if errors.As(err, &rl) && rl.Kind == memerrors.KindRateLimit {
						park(rl.RetryAfter)
						continue
					}
					return result, err
				}
				return result, err
			},
		)
	}
}

// defaultRetryAfter is used when a rate-limit response carries no parseable hint.
const defaultRetryAfter = 60 * time.Second

// ParseRetryAfterSeconds converts a provider's retry-after hint (seconds) to
// a duration, defaulting to defaultRetryAfter when seconds <= 0.
func ParseRetryAfterSeconds(seconds float64) time.Duration {
	if seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds * float64(time.Second))
}
