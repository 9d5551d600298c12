package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlayer/internal/chunking"
	"memlayer/internal/completion"
	"memlayer/internal/extraction"
	"memlayer/internal/metrics"
	"memlayer/internal/retrieval"
	"memlayer/internal/storage/memstore"
	"memlayer/internal/tokencount"
)

type countingRecorder struct {
	mu                  sync.Mutex
	extractionObserved  int
	fallbacksRecorded   int
}

func (c *countingRecorder) ObserveExtractionDuration(string, time.Duration) {
	c.mu.Lock()
	c.extractionObserved++
	c.mu.Unlock()
}
func (c *countingRecorder) ObserveDedupCluster(string, int) {}
func (c *countingRecorder) IncRetrievalFallback(string) {
	c.mu.Lock()
	c.fallbacksRecorded++
	c.mu.Unlock()
}
func (c *countingRecorder) IncRateLimitThrottle(string) {}

var _ metrics.Recorder = (*countingRecorder)(nil)

type stubEmbedder struct{ dim int }

func (s stubEmbedder) Dimension() int { return s.dim }
func (s stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type stubLLM struct {
	content string
}

func (s stubLLM) Name() string { return "stub" }
func (s stubLLM) Complete(_ context.Context, _ completion.Request) (completion.Response, error) {
	return completion.Response{Content: s.content}, nil
}
func (s stubLLM) CompleteStructured(_ context.Context, _ completion.Request, _ completion.Schema) (string, error) {
	return `{"memories":[],"relationships":[]}`, nil
}
func (s stubLLM) CompleteWithFunctions(_ context.Context, _ completion.Request, _ []completion.FunctionDefinition) (completion.FunctionCallResult, error) {
	return completion.FunctionCallResult{}, nil
}

func newTestProcessor(t *testing.T, llmContent string) (*Processor, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	counter, err := tokencount.New(64, 0)
	require.NoError(t, err)
	builder := retrieval.NewBuilder(store, stubEmbedder{dim: 3}, counter, retrieval.Config{})
	llm := stubLLM{content: llmContent}
	registry := extraction.NewRegistry()
	strategy := extraction.NewStrategy(llm, registry)
	chunkRegistry := chunking.NewRegistry(counter)
	chunkRegistry.Register(chunking.NewSlidingWindowStrategy(counter))
	bus := NewEventBus()

	p := NewProcessor(store, builder, llm, strategy, chunkRegistry, bus, ExtractionConfig{
		Types:       []string{extraction.TypeFact},
		ChunkConfig: chunking.Config{MaxTokensPerChunk: 500, Strategy: chunking.StrategySlidingWindow},
		Concurrency: 1,
	})
	return p, store
}

func TestProcess_ValidatesRequiredFields(t *testing.T) {
	p, _ := newTestProcessor(t, "hi")
	_, err := p.Process(context.Background(), Request{})
	require.Error(t, err)
}

func TestProcess_PersistsCommandAndReturnsResponse(t *testing.T) {
	p, store := newTestProcessor(t, "hello there")
	req := Request{WorkspaceID: "ws-1", UserID: "u1", CommandID: "c1", Text: "hi", Timestamp: time.Now()}

	resp, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.AssistantText)
	assert.Equal(t, "c1", resp.CommandID)

	assert.Len(t, store.Commands(), 1)
}

func TestProcess_PublishesCommandProcessedEvent(t *testing.T) {
	p, _ := newTestProcessor(t, "ack")
	var mu sync.Mutex
	var received []Event
	p.bus.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})

	req := Request{WorkspaceID: "ws-1", UserID: "u1", CommandID: "c2", Text: "hi", Timestamp: time.Now()}
	_, err := p.Process(context.Background(), req)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "c2", received[0].CommandID)
}

func TestProcess_SchedulesBackgroundExtractionWithoutSurfacingFailure(t *testing.T) {
	p, _ := newTestProcessor(t, "ack")
	done := make(chan error, 1)
	p.onExtractionDone = func(err error) { done <- err }

	req := Request{WorkspaceID: "ws-1", UserID: "u1", CommandID: "c3", Text: "hi", Timestamp: time.Now()}
	resp, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "c3", resp.CommandID)

	select {
	case extractErr := <-done:
		assert.NoError(t, extractErr)
	case <-time.After(5 * time.Second):
		t.Fatal("background extraction did not complete")
	}
}

func TestSetRecorder_ForwardsToCollaboratorsAndObservesExtraction(t *testing.T) {
	p, _ := newTestProcessor(t, "ack")
	recorder := &countingRecorder{}
	p.SetRecorder(recorder)

	done := make(chan error, 1)
	p.onExtractionDone = func(err error) { done <- err }

	req := Request{WorkspaceID: "ws-1", UserID: "u1", CommandID: "c4", Text: "hi", Timestamp: time.Now()}
	_, err := p.Process(context.Background(), req)
	require.NoError(t, err)

	select {
	case extractErr := <-done:
		require.NoError(t, extractErr)
	case <-time.After(5 * time.Second):
		t.Fatal("background extraction did not complete")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Positive(t, recorder.extractionObserved)
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	var count int
	var mu sync.Mutex
	sub := bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	bus.Publish(Event{CommandID: "a"})
	bus.Unsubscribe(sub)
	bus.Publish(Event{CommandID: "b"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
