package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlayer/internal/memerrors"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        false,
	}
}

func TestRetryMiddleware_RetriesRetryableKind(t *testing.T) {
	fake := &fakeProvider{
		name: "fake",
		completeErrs: []error{
			memerrors.Wrap(memerrors.KindLLM, errors.New("503"), "transient"),
			nil,
		},
		completeResp: []Response{{}, {Content: "ok"}},
	}
	wrapped := Chain(fake, RetryMiddleware(fastRetryConfig()))

	resp, err := wrapped.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int64(2), fake.completeCall.Load())
}

func TestRetryMiddleware_DoesNotRetryValidationError(t *testing.T) {
	fake := &fakeProvider{
		name:         "fake",
		completeErrs: []error{memerrors.New(memerrors.KindValidation, "bad input")},
	}
	wrapped := Chain(fake, RetryMiddleware(fastRetryConfig()))

	_, err := wrapped.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, int64(1), fake.completeCall.Load())
}

func TestRetryMiddleware_ExhaustsAttempts(t *testing.T) {
	cfg := fastRetryConfig()
	fake := &fakeProvider{
		name: "fake",
		completeErrs: []error{
			memerrors.Wrap(memerrors.KindLLM, errors.New("503"), "transient"),
			memerrors.Wrap(memerrors.KindLLM, errors.New("503"), "transient"),
			memerrors.Wrap(memerrors.KindLLM, errors.New("503"), "transient"),
		},
	}
	wrapped := Chain(fake, RetryMiddleware(cfg))

	_, err := wrapped.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, int64(cfg.MaxAttempts), fake.completeCall.Load())
	assert.True(t, memerrors.Is(err, memerrors.KindLLM))
}

func TestRetryMiddleware_CancelledContextStopsWait(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1, Jitter: false}
	fake := &fakeProvider{
		name: "fake",
		completeErrs: []error{
			memerrors.Wrap(memerrors.KindLLM, errors.New("503"), "transient"),
		},
	}
	wrapped := Chain(fake, RetryMiddleware(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := wrapped.Complete(ctx, Request{})
	require.Error(t, err)
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, shouldRetry(nil))
	assert.False(t, shouldRetry(memerrors.New(memerrors.KindValidation, "x")))
	assert.True(t, shouldRetry(memerrors.New(memerrors.KindLLM, "x")))
	assert.True(t, shouldRetry(memerrors.New(memerrors.KindRateLimit, "x")))
	assert.True(t, shouldRetry(errors.New("unclassified")))
}

func TestDelayFor_BacksOffAndCaps(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2.0, Jitter: false}
	assert.Equal(t, time.Duration(0), cfg.delayFor(1))
	assert.Equal(t, time.Second, cfg.delayFor(2))
	assert.Equal(t, 2*time.Second, cfg.delayFor(3))
	assert.Equal(t, 3*time.Second, cfg.delayFor(4)) // would be 4s, capped at MaxDelay
}
