package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowProvider struct {
	delay time.Duration
}

func (s slowProvider) Name() string { return "slow" }
func (s slowProvider) Complete(ctx context.Context, _ Request) (Response, error) {
	select {
	case <-time.After(s.delay):
		return Response{Content: "done"}, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
func (s slowProvider) CompleteStructured(ctx context.Context, _ Request, _ Schema) (string, error) {
	select {
	case <-time.After(s.delay):
		return "{}", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
func (s slowProvider) CompleteWithFunctions(ctx context.Context, _ Request, _ []FunctionDefinition) (FunctionCallResult, error) {
	select {
	case <-time.After(s.delay):
		return FunctionCallResult{}, nil
	case <-ctx.Done():
		return FunctionCallResult{}, ctx.Err()
	}
}

func TestTimeoutMiddleware_CancelsSlowCall(t *testing.T) {
	wrapped := Chain(slowProvider{delay: 50 * time.Millisecond}, TimeoutMiddleware(5*time.Millisecond))
	_, err := wrapped.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTimeoutMiddleware_AllowsFastCallThrough(t *testing.T) {
	wrapped := Chain(slowProvider{delay: time.Millisecond}, TimeoutMiddleware(50*time.Millisecond))
	resp, err := wrapped.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
}
