package completion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_AppliesMiddlewareOutermostFirst(t *testing.T) {
	var order []string

	tag := func(name string) Middleware {
		return func(next Provider) Provider {
			return WrapProvider(next.Name(), next,
				func(ctx context.Context, req Request) (Response, error) {
					order = append(order, name)
					return next.Complete(ctx, req)
				},
				nil, nil,
			)
		}
	}

	fake := &fakeProvider{name: "base", completeResp: []Response{{Content: "ok"}}}
	wrapped := Chain(fake, tag("outer"), tag("inner"))

	resp, err := wrapped.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestWrapProvider_NilFuncsDelegateToNext(t *testing.T) {
	fake := &fakeProvider{
		name:         "base",
		completeResp: []Response{{Content: "direct"}},
	}
	wrapped := WrapProvider("base", fake, nil, nil, nil)

	resp, err := wrapped.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "direct", resp.Content)
	assert.Equal(t, "base", wrapped.Name())
}

func TestChain_NoMiddlewaresReturnsBase(t *testing.T) {
	fake := &fakeProvider{name: "base"}
	wrapped := Chain(fake)
	assert.Equal(t, fake, wrapped)
}
