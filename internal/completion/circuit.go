package completion

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the current state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitConfig parameterizes a CircuitBreaker.
type CircuitConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultCircuitConfig holds reasonable defaults for circuit breaker behavior.
var DefaultCircuitConfig = CircuitConfig{
	FailureThreshold: 5,
	SuccessThreshold: 3,
	Timeout:          30 * time.Second,
}

// CircuitOpenError is returned when a call is rejected because the breaker
// is open and its Timeout has not yet elapsed; a half-open breaker admits
// every call.
type CircuitOpenError struct {
	State CircuitState
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// CircuitBreaker trips after repeated provider failures and rejects calls
// until Timeout has elapsed, then admits a trial batch before closing again.
type CircuitBreaker struct {
	cfg             CircuitConfig
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

func NewCircuitBreaker(cfg CircuitConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(b.lastFailureTime) >= b.cfg.Timeout {
			b.state = CircuitHalfOpen
			b.successCount = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	default:
		return false
	}
}

func (b *CircuitBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *CircuitBreaker) onSuccess() {
	switch b.state {
	case CircuitClosed:
		b.failureCount = 0
	case CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = CircuitClosed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *CircuitBreaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case CircuitClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = CircuitOpen
		}
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.successCount = 0
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed, clearing its failure history.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failureCount = 0
	b.successCount = 0
}

// CircuitBreakerMiddleware rejects calls with a CircuitOpenError while the
// breaker is open, and records every call's outcome to drive its state.
func CircuitBreakerMiddleware(b *CircuitBreaker) Middleware {
	return func(next Provider) Provider {
		return WrapProvider(next.Name(), next,
			func(ctx context.Context, req Request) (Response, error) {
				if !b.allow() {
					return Response{}, &CircuitOpenError{State: b.State()}
				}
				resp, err := next.Complete(ctx, req)
				b.record(err == nil)
				return resp, err
			},
			func(ctx context.Context, req Request, schema Schema) (string, error) {
				if !b.allow() {
					return "", &CircuitOpenError{State: b.State()}
				}
				out, err := next.CompleteStructured(ctx, req, schema)
				b.record(err == nil)
				return out, err
			},
			func(ctx context.Context, req Request, fns []FunctionDefinition) (FunctionCallResult, error) {
				if !b.allow() {
					return FunctionCallResult{}, &CircuitOpenError{State: b.State()}
				}
				out, err := next.CompleteWithFunctions(ctx, req, fns)
				b.record(err == nil)
				return out, err
			},
		)
	}
}
