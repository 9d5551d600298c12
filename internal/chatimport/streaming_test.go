package chatimport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingBuilder_AddMessageAndFinalize(t *testing.T) {
	b := NewStreamingBuilder("openai").WithTitle("demo")

	_, err := b.AddMessage(RoleUser, "hello")
	require.NoError(t, err)
	_, err = b.AddMessage(RoleAssistant, "hi there")
	require.NoError(t, err)

	conv, err := b.Finalize(nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", conv.Provider)
	assert.Equal(t, "demo", conv.Title)
	require.Len(t, conv.Messages, 2)
}

func TestStreamingBuilder_PartialDeltasAccumulate(t *testing.T) {
	b := NewStreamingBuilder("anthropic")

	_, err := b.AddPartialMessageDelta(RoleAssistant, "Hel")
	require.NoError(t, err)
	_, err = b.AddPartialMessageDelta(RoleAssistant, "lo")
	require.NoError(t, err)

	conv, err := b.Finalize(nil)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
}

func TestStreamingBuilder_RejectsMutationAfterFinalize(t *testing.T) {
	b := NewStreamingBuilder("openai")
	_, err := b.AddMessage(RoleUser, "hi")
	require.NoError(t, err)

	_, err = b.Finalize(nil)
	require.NoError(t, err)

	_, err = b.AddMessage(RoleUser, "too late")
	assert.Error(t, err)

	_, err = b.AddPartialMessageDelta(RoleUser, "nope")
	assert.Error(t, err)
}

func TestStreamingBuilder_FinalizeIsIdempotent(t *testing.T) {
	b := NewStreamingBuilder("openai")
	_, _ = b.AddMessage(RoleUser, "hi")

	first, err := b.Finalize(nil)
	require.NoError(t, err)
	second, err := b.Finalize(nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestStreamingBuilder_RejectsConcurrentMutation(t *testing.T) {
	b := NewStreamingBuilder("openai")

	var wg sync.WaitGroup
	errs := make([]error, 50)
	wg.Add(50)
	for i := 0; i < 50; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, errs[i] = b.AddMessage(RoleUser, "x")
		}()
	}
	wg.Wait()

	successes := 0
	for _, e := range errs {
		if e == nil {
			successes++
		}
	}
	assert.Greater(t, successes, 0)
	assert.Equal(t, 50, b.State().MessageCount+countErrors(errs))
}

func countErrors(errs []error) int {
	n := 0
	for _, e := range errs {
		if e != nil {
			n++
		}
	}
	return n
}

func TestStreamingBuilder_StateReflectsPendingMessage(t *testing.T) {
	b := NewStreamingBuilder("openai")
	assert.Equal(t, 0, b.State().MessageCount)

	_, _ = b.AddPartialMessageDelta(RoleUser, "partial")
	assert.Equal(t, 1, b.State().MessageCount)
	assert.False(t, b.State().IsFinalized)
}
