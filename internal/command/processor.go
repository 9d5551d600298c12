package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"memlayer/internal/chatimport"
	"memlayer/internal/chunking"
	"memlayer/internal/completion"
	"memlayer/internal/dedup"
	"memlayer/internal/extraction"
	"memlayer/internal/memerrors"
	"memlayer/internal/memlog"
	"memlayer/internal/metrics"
	"memlayer/internal/retrieval"
	"memlayer/internal/storage"
)

var logger = memlog.NewLogger("command")

// ExtractionConfig parameterizes the background memory extraction a
// processed command schedules over its (request, response) pair.
type ExtractionConfig struct {
	Types       []string
	ChunkConfig chunking.Config
	Concurrency int
}

// Processor validates a request, builds
// retrieval context, calls the LLM, persists the exchange, publishes a
// command_processed event, and schedules background memory extraction.
// Collaborators are constructor-supplied dependencies rather than
// singletons, so tests need no hidden global state.
type Processor struct {
	store     storage.Client
	builder   *retrieval.Builder
	llm       completion.Provider
	extractor *extraction.Strategy
	chunker   *chunking.Registry
	deduper   *dedup.Deduplicator
	bus       *EventBus
	extCfg    ExtractionConfig

	// onExtractionDone, when set, is invoked after background extraction
	// finishes (nil error on success). Test-only hook; production callers
	// never set it, since extraction failures are logged, never surfaced.
	onExtractionDone func(error)
}

// NewProcessor wires a Processor from its collaborators.
func NewProcessor(
	store storage.Client,
	builder *retrieval.Builder,
	llm completion.Provider,
	extractor *extraction.Strategy,
	chunker *chunking.Registry,
	bus *EventBus,
	extCfg ExtractionConfig,
) *Processor {
	return &Processor{
		store:     store,
		builder:   builder,
		llm:       llm,
		extractor: extractor,
		chunker:   chunker,
		deduper:   dedup.NewDeduplicator(),
		bus:       bus,
		extCfg:    extCfg,
	}
}

// SetRecorder installs r on every collaborator that reports metrics
// (extraction duration, dedup cluster size, retrieval fallback counts), so
// a caller wires observability once instead of reaching into each
// collaborator individually.
func (p *Processor) SetRecorder(r metrics.Recorder) {
	p.builder.SetRecorder(r)
	p.extractor.SetRecorder(r)
	p.deduper.SetRecorder(r)
}

func validate(req Request) error {
	if req.UserID == "" {
		return memerrors.New(memerrors.KindValidation, "user_id is required")
	}
	if req.CommandID == "" {
		return memerrors.New(memerrors.KindValidation, "command_id is required")
	}
	if req.Text == "" {
		return memerrors.New(memerrors.KindValidation, "text is required")
	}
	if req.WorkspaceID == "" {
		return memerrors.New(memerrors.KindValidation, "workspace_id is required")
	}
	return nil
}

// Process runs the full command_processed pipeline and returns
// {command_id, assistant_text, actions, memories_used} on success.
func (p *Processor) Process(ctx context.Context, req Request) (Response, error) {
	if err := validate(req); err != nil {
		return Response{}, err
	}

	built, err := p.builder.BuildContext(ctx, req.Text, req.WorkspaceID)
	if err != nil {
		return Response{}, err
	}

	llmResp, err := p.llm.Complete(ctx, completion.Request{
		Messages: []completion.Message{
			{Role: completion.RoleSystem, Content: built.Text},
			{Role: completion.RoleUser, Content: req.Text},
		},
	})
	if err != nil {
		return Response{}, err
	}

	storageReq := storage.CommandRequest{
		WorkspaceID:   req.WorkspaceID,
		UserID:        req.UserID,
		CommandID:     req.CommandID,
		Text:          req.Text,
		Timestamp:     req.Timestamp,
		ScreenContext: req.ScreenContext,
		Meta:          req.Meta,
	}
	storageResp := storage.CommandResponse{AssistantText: llmResp.Content}

	if err := p.store.SaveCommand(ctx, storageReq, storageResp, built.Memories); err != nil {
		return Response{}, memerrors.Wrap(memerrors.KindStorage, err, "save_command failed")
	}

	resp := Response{
		CommandID:     req.CommandID,
		AssistantText: llmResp.Content,
		MemoriesUsed:  built.Memories,
	}

	p.bus.Publish(Event{
		CommandID:     req.CommandID,
		WorkspaceID:   req.WorkspaceID,
		AssistantText: resp.AssistantText,
		Actions:       resp.Actions,
	})

	go p.extractInBackground(req, resp)

	return resp, nil
}

// extractInBackground runs memory extraction over the (request, response)
// exchange on its own goroutine, outside the request's deadline. Failures
// are logged and never surface to the caller.
func (p *Processor) extractInBackground(req Request, resp Response) {
	err := p.runExtraction(req, resp)
	if err != nil {
		logger.Error("background extraction failed for command %s: %v", req.CommandID, err)
	}
	if p.onExtractionDone != nil {
		p.onExtractionDone(err)
	}
}

func (p *Processor) runExtraction(req Request, resp Response) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now()
	conv := chatimport.NormalizedConversation{
		ID:        uuid.NewString(),
		Provider:  "command",
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []chatimport.NormalizedMessage{
			{ID: uuid.NewString(), Role: chatimport.RoleUser, Content: req.Text, CreatedAt: now},
			{ID: uuid.NewString(), Role: chatimport.RoleAssistant, Content: resp.AssistantText, CreatedAt: now},
		},
	}

	results, err := p.extractor.Extract(ctx, conv, req.WorkspaceID, p.extCfg.Types, p.chunker, p.extCfg.ChunkConfig, false, p.extCfg.Concurrency)
	if err != nil {
		return fmt.Errorf("extract conversation: %w", err)
	}

	dedupResult := p.deduper.Deduplicate(results)
	relationships := dedup.MergeRelationships(dedupResult.UniqueMemories, dedup.ResolvedRelationships(results))

	// storage.CreateMemory mints its own id, so relationship endpoints
	// (extraction-assigned ids) must be translated to the live storage ids
	// before relationships can be inserted; relationship insertion only
	// happens once every participating memory is live.
	storageID := make(map[string]string, len(dedupResult.UniqueMemories))
	for _, m := range dedupResult.UniqueMemories {
		created, err := p.store.CreateMemory(ctx, req.WorkspaceID, m.Type, m.Content, m.Confidence, m.Metadata, m.Embedding)
		if err != nil {
			logger.Error("persist extracted memory failed for command %s: %v", req.CommandID, err)
			continue
		}
		storageID[m.ID] = created.ID
	}

	for _, rel := range relationships {
		fromID, fromOK := storageID[rel.FromMemoryID]
		toID, toOK := storageID[rel.ToMemoryID]
		if !fromOK || !toOK {
			logger.Error("dropping relationship for command %s: endpoint did not persist", req.CommandID)
			continue
		}
		if _, err := p.store.CreateRelationship(ctx, storage.Relationship{
			FromMemoryID:     fromID,
			ToMemoryID:       toID,
			RelationshipType: rel.RelationshipType,
			Confidence:       rel.Confidence,
		}); err != nil {
			logger.Error("persist extracted relationship failed for command %s: %v", req.CommandID, err)
		}
	}

	return nil
}
