package retrieval

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlayer/internal/storage/memstore"
	"memlayer/internal/tokencount"
)

type fixedEmbedder struct {
	vec []float32
	dim int
}

func (f fixedEmbedder) Dimension() int { return f.dim }
func (f fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, nil
}

func newCounter(t *testing.T) *tokencount.Counter {
	t.Helper()
	c, err := tokencount.New(64, 0)
	require.NoError(t, err)
	return c
}

func TestBuildContext_ConversationalFilterDropsEchoes(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	_, err := store.CreateMemory(ctx, "ws-1", "fact", "X", 0.9, nil, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, "ws-1", "fact.command", "echo", 0.95, nil, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, "ws-1", "fact.response", "echo reply", 0.95, nil, []float32{1, 0, 0})
	require.NoError(t, err)

	b := NewBuilder(store, fixedEmbedder{vec: []float32{1, 0, 0}}, newCounter(t), Config{})
	out, err := b.BuildContext(ctx, "query", "ws-1")
	require.NoError(t, err)
	require.Len(t, out.Memories, 1)
	assert.Equal(t, "X", out.Memories[0].Memory.Content)
}

func TestBuildContext_FactBoostReordersAboveHigherRawScore(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	// cosine scores against the query are 0.6 (fact) and 0.8 (file); the
	// 1.5x boost lifts the fact to 0.9
	_, err := store.CreateMemory(ctx, "ws-1", "fact", "fact memory", 0.9, nil, []float32{0.6, 0.8, 0})
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, "ws-1", "entity.file", "file memory", 0.9, nil, []float32{0.8, 0.6, 0})
	require.NoError(t, err)

	b := NewBuilder(store, fixedEmbedder{vec: []float32{1, 0, 0}}, newCounter(t), Config{})
	out, err := b.BuildContext(ctx, "query", "ws-1")
	require.NoError(t, err)
	require.Len(t, out.Memories, 2)
	assert.Equal(t, "fact memory", out.Memories[0].Memory.Content)
}

func TestBuildContext_EmptyResultFallsBackToTextSearch(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	_, err := store.CreateMemory(ctx, "ws-1", "fact", "bananas are yellow", 0.8, nil, nil)
	require.NoError(t, err)

	b := NewBuilder(store, fixedEmbedder{vec: []float32{1, 0, 0}}, newCounter(t), Config{})
	out, err := b.BuildContext(ctx, "bananas", "ws-1")
	require.NoError(t, err)
	require.Len(t, out.Memories, 1)
	assert.Contains(t, out.Fallbacks, "text_search")
}

type stageCountingRecorder struct {
	mu     sync.Mutex
	stages []string
}

func (r *stageCountingRecorder) ObserveExtractionDuration(string, time.Duration) {}
func (r *stageCountingRecorder) ObserveDedupCluster(string, int)                 {}
func (r *stageCountingRecorder) IncRetrievalFallback(stage string) {
	r.mu.Lock()
	r.stages = append(r.stages, stage)
	r.mu.Unlock()
}
func (r *stageCountingRecorder) IncRateLimitThrottle(string) {}

func TestBuildContext_SetRecorderObservesFiredFallbackStages(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	_, err := store.CreateMemory(ctx, "ws-1", "fact", "bananas are yellow", 0.8, nil, nil)
	require.NoError(t, err)

	b := NewBuilder(store, fixedEmbedder{vec: []float32{1, 0, 0}}, newCounter(t), Config{})
	recorder := &stageCountingRecorder{}
	b.SetRecorder(recorder)

	_, err = b.BuildContext(ctx, "bananas", "ws-1")
	require.NoError(t, err)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Contains(t, recorder.stages, "text_search")
}

func TestBuildContext_EmptyWorkspaceExhaustsCascadeToRecentFiles(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	_, err := store.CreateMemory(ctx, "other-ws", "entity.file", "README.md", 0.8, nil, nil)
	require.NoError(t, err)

	b := NewBuilder(store, fixedEmbedder{vec: []float32{1, 0, 0}}, newCounter(t), Config{})
	out, err := b.BuildContext(ctx, "nothing matches this", "ws-1")
	require.NoError(t, err)
	assert.Empty(t, out.Memories)
	assert.Contains(t, out.Fallbacks, "recent_files_last_resort")
}

func TestBuildContext_TokenBudgetTruncatesTail(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.CreateMemory(ctx, "ws-1", "fact", strings.Repeat("word ", 400), 0.9, nil, []float32{1, 0, 0})
		require.NoError(t, err)
	}

	b := NewBuilder(store, fixedEmbedder{vec: []float32{1, 0, 0}}, newCounter(t), Config{TokenBudget: 50})
	out, err := b.BuildContext(ctx, "query", "ws-1")
	require.NoError(t, err)
	require.Len(t, out.Memories, 5)
	assert.Less(t, strings.Count(out.Text, "word"), 5*400)
}

func TestBuildContext_VectorSearchScopedToWorkspace(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	_, err := store.CreateMemory(ctx, "ws-1", "fact", "in scope", 0.9, nil, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, "ws-2", "fact", "out of scope", 0.9, nil, []float32{1, 0, 0})
	require.NoError(t, err)

	b := NewBuilder(store, fixedEmbedder{vec: []float32{1, 0, 0}}, newCounter(t), Config{})
	out, err := b.BuildContext(ctx, "query", "ws-1")
	require.NoError(t, err)
	require.Len(t, out.Memories, 1)
	assert.Equal(t, "in scope", out.Memories[0].Memory.Content)
}
