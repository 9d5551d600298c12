package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"memlayer/internal/chatimport"
	"memlayer/internal/chunking"
	"memlayer/internal/completion"
	"memlayer/internal/memerrors"
	"memlayer/internal/metrics"
)

// Strategy implements extract, extract_from_chunk, and
// extract_incremental: type-specific prompt/schema construction, a
// structured completion.Provider call per chunk, and existing-memory
// context for incremental dedup hints.
type Strategy struct {
	provider completion.Provider
	registry *Registry
	recorder metrics.Recorder
}

// NewStrategy returns a Strategy that calls provider for every chunk and
// resolves memory-type prompts/schemas from registry.
func NewStrategy(provider completion.Provider, registry *Registry) *Strategy {
	return &Strategy{provider: provider, registry: registry, recorder: metrics.Nop()}
}

// SetRecorder installs a metrics.Recorder for per-chunk extraction timing.
// Defaults to a no-op recorder, so instrumentation is always optional.
func (s *Strategy) SetRecorder(r metrics.Recorder) {
	s.recorder = r
}

type rawMemory struct {
	Type       string         `json:"type"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

type rawRelationship struct {
	FromIndex        int     `json:"from_memory_index"`
	ToIndex          int     `json:"to_memory_index"`
	RelationshipType string  `json:"relationship_type"`
	Confidence       float64 `json:"confidence"`
}

type rawResult struct {
	Memories      []rawMemory       `json:"memories"`
	Relationships []rawRelationship `json:"relationships"`
}

// ExtractFromChunk implements extract_from_chunk: builds the prompt and
// schema for messages and types, invokes the provider in structured mode,
// and runs transform_result over the decoded output. chunkID may be empty
// for an incremental (non-chunked) extraction.
func (s *Strategy) ExtractFromChunk(
	ctx context.Context,
	messages []chatimport.NormalizedMessage,
	conversationID, workspaceID, chunkID string,
	types []string,
	previous *PreviousChunkContext,
) (ChunkExtractionResult, error) {
	if len(types) == 0 {
		types = []string{TypeEntity, TypeFact, TypeDecision}
	}

	prompt := buildPrompt(messages, s.registry, types, previous)
	schema := buildSchema(s.registry, types)

	req := completion.Request{
		Messages:    []completion.Message{{Role: completion.RoleUser, Content: prompt}},
		Temperature: 0.3,
	}

	start := time.Now()
	raw, err := s.provider.CompleteStructured(ctx, req, schema)
	s.recorder.ObserveExtractionDuration(strings.Join(types, ","), time.Since(start))
	if err != nil {
		return ChunkExtractionResult{}, err
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ChunkExtractionResult{}, memerrors.NewParseError(err, raw)
	}

	return s.transformResult(parsed, messages, conversationID, workspaceID, chunkID), nil
}

// transformResult implements transform_result: assigns workspace/
// conversation/source-message provenance, stamps created_at, and drops
// relationships whose indices fall outside the returned memories, storing
// surviving ones with "temp_{index}" endpoint placeholders for the
// deduplicator to resolve against this same result's Memories slice.
func (s *Strategy) transformResult(
	parsed rawResult,
	messages []chatimport.NormalizedMessage,
	conversationID, workspaceID, chunkID string,
) ChunkExtractionResult {
	sourceMessageIDs := make([]string, 0, len(messages))
	for _, m := range messages {
		sourceMessageIDs = append(sourceMessageIDs, m.ID)
	}

	now := time.Now()

	memories := make([]Memory, 0, len(parsed.Memories))
	for _, rm := range parsed.Memories {
		mem := Memory{
			ID:               uuid.NewString(),
			WorkspaceID:      workspaceID,
			ConversationID:   conversationID,
			Type:             rm.Type,
			Content:          rm.Content,
			Confidence:       rm.Confidence,
			Metadata:         rm.Metadata,
			SourceMessageIDs: sourceMessageIDs,
			CreatedAt:        now,
		}
		if chunkID != "" {
			mem.SourceChunks = []string{chunkID}
			mem.ChunkConfidence = []float64{rm.Confidence}
		}
		memories = append(memories, mem)
	}

	relationships := make([]Relationship, 0, len(parsed.Relationships))
	for _, rr := range parsed.Relationships {
		if rr.FromIndex < 0 || rr.FromIndex >= len(memories) || rr.ToIndex < 0 || rr.ToIndex >= len(memories) {
			continue
		}
		relationships = append(relationships, Relationship{
			FromMemoryID:     tempID(rr.FromIndex),
			ToMemoryID:       tempID(rr.ToIndex),
			RelationshipType: rr.RelationshipType,
			Confidence:       rr.Confidence,
			CreatedAt:        now,
		})
	}

	return ChunkExtractionResult{ChunkID: chunkID, Memories: memories, Relationships: relationships}
}

func tempID(index int) string {
	return fmt.Sprintf("temp_%d", index)
}

// Extract implements extract(conv, workspace_id, config): chunks conv via
// chunker, then extracts each chunk. Chunks run strictly in sequence (each
// chunk's previous_chunk_context taken from its immediate predecessor) when
// useChunkContext is set;
// otherwise chunks extract concurrently, bounded by concurrency (0 means
// unbounded). A single chunk's failure is recorded on its own result and
// does not abort the rest of the conversation.
func (s *Strategy) Extract(
	ctx context.Context,
	conv chatimport.NormalizedConversation,
	workspaceID string,
	types []string,
	chunker *chunking.Registry,
	chunkCfg chunking.Config,
	useChunkContext bool,
	concurrency int,
) ([]ChunkExtractionResult, error) {
	chunks, err := chunker.Chunk(conv, chunkCfg)
	if err != nil {
		return nil, err
	}

	results := make([]ChunkExtractionResult, len(chunks))

	if useChunkContext {
		var previous *PreviousChunkContext
		for i, chunk := range chunks {
			result, extractErr := s.ExtractFromChunk(ctx, chunk.Messages, conv.ID, workspaceID, chunk.ID, types, previous)
			if extractErr != nil {
				results[i] = ChunkExtractionResult{ChunkID: chunk.ID, Status: StatusFailed, Err: extractErr}
				previous = nil
				continue
			}
			result.Status = StatusSuccess
			results[i] = result
			previous = &PreviousChunkContext{Memories: result.Memories}
		}
		return results, nil
	}

	if concurrency <= 0 {
		concurrency = len(chunks)
	}
	if concurrency == 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			result, extractErr := s.ExtractFromChunk(gctx, chunk.Messages, conv.ID, workspaceID, chunk.ID, types, nil)
			if extractErr != nil {
				results[i] = ChunkExtractionResult{ChunkID: chunk.ID, Status: StatusFailed, Err: extractErr}
				return nil
			}
			result.Status = StatusSuccess
			results[i] = result
			return nil
		})
	}
	_ = g.Wait() // per-chunk failures are captured on their own result, not propagated

	return results, nil
}

// ExtractIncremental implements extract_incremental: treats newMessages as
// a single unchunked extraction call against an already-processed
// conversation, using incCtx.Previous for duplicate avoidance.
func (s *Strategy) ExtractIncremental(ctx context.Context, newMessages []chatimport.NormalizedMessage, incCtx IncrementalContext) (ChunkExtractionResult, error) {
	result, err := s.ExtractFromChunk(ctx, newMessages, incCtx.ConversationID, incCtx.WorkspaceID, "", incCtx.Types, incCtx.Previous)
	if err != nil {
		return ChunkExtractionResult{Status: StatusFailed, Err: err}, err
	}
	result.Status = StatusSuccess
	return result, nil
}
