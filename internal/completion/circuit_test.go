package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	fake := &fakeProvider{
		name:         "flaky-" + t.Name(),
		completeErrs: []error{errors.New("boom"), errors.New("boom")},
	}
	breaker := NewCircuitBreaker(CircuitConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})
	wrapped := Chain(fake, CircuitBreakerMiddleware(breaker))

	_, err := wrapped.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, breaker.State())

	_, err = wrapped.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, breaker.State())

	_, err = wrapped.Complete(context.Background(), Request{})
	require.Error(t, err)
	var circuitErr *CircuitOpenError
	require.ErrorAs(t, err, &circuitErr)
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	fake := &fakeProvider{
		name:         "recovering-" + t.Name(),
		completeErrs: []error{errors.New("boom"), nil, nil},
		completeResp: []Response{{}, {Content: "ok"}, {Content: "ok"}},
	}
	breaker := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	wrapped := Chain(fake, CircuitBreakerMiddleware(breaker))

	_, err := wrapped.Complete(context.Background(), Request{})
	require.Error(t, err)
	require.Equal(t, CircuitOpen, breaker.State())

	time.Sleep(15 * time.Millisecond)

	_, err = wrapped.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, breaker.State())

	_, err = wrapped.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, breaker.State())
}

func TestCircuitBreaker_ResetClearsState(t *testing.T) {
	breaker := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	fake := &fakeProvider{name: "x", completeErrs: []error{errors.New("boom")}}
	wrapped := Chain(fake, CircuitBreakerMiddleware(breaker))

	_, err := wrapped.Complete(context.Background(), Request{})
	require.Error(t, err)
	require.Equal(t, CircuitOpen, breaker.State())

	breaker.Reset()
	assert.Equal(t, CircuitClosed, breaker.State())
}
