package retrieval

import (
	"context"
	"sort"
	"strings"

	"memlayer/internal/embedding"
	"memlayer/internal/memerrors"
	"memlayer/internal/metrics"
	"memlayer/internal/storage"
	"memlayer/internal/tokencount"
)

// Builder implements build_context: vector retrieval, conversational
// filtering, fact-score boosting, a fallback cascade for sparse results,
// and token-budgeted composition of the final context string.
type Builder struct {
	store    storage.Client
	embedder embedding.Embedder
	counter  *tokencount.Counter
	cfg      Config
	recorder metrics.Recorder
}

// NewBuilder wires a Builder from its collaborators. cfg's zero value uses
// the package defaults.
func NewBuilder(store storage.Client, embedder embedding.Embedder, counter *tokencount.Counter, cfg Config) *Builder {
	if cfg.K <= 0 {
		cfg.K = defaultK
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = defaultTokenBudget
	}
	if cfg.FactBoost <= 0 {
		cfg.FactBoost = factBoostFactor
	}
	if cfg.TokenMethod == "" {
		cfg.TokenMethod = tokencount.MethodApproximate
	}
	return &Builder{store: store, embedder: embedder, counter: counter, cfg: cfg, recorder: metrics.Nop()}
}

// SetRecorder installs a metrics.Recorder for counting fallback-cascade
// stage firings. Defaults to a no-op recorder.
func (b *Builder) SetRecorder(r metrics.Recorder) {
	b.recorder = r
}

// isConversationalEcho reports whether typ is a request/response echo that
// build_context's conversational filter always drops.
func isConversationalEcho(typ string) bool {
	return strings.HasPrefix(typ, "fact.command") || strings.HasPrefix(typ, "fact.response")
}

// isFileMemory reports whether typ is file/screen metadata rather than a
// substantive memory.
func isFileMemory(typ string) bool {
	return strings.HasPrefix(typ, "entity.file") || strings.HasPrefix(typ, "context.screen")
}

func filterEchoes(in []storage.ScoredMemory) []storage.ScoredMemory {
	out := in[:0:0]
	for _, sm := range in {
		if isConversationalEcho(sm.Memory.Type) {
			continue
		}
		out = append(out, sm)
	}
	return out
}

// boostAndSort applies the fact boost and re-sorts descending by score,
// preserving original relative order among ties (stable sort).
func boostAndSort(in []storage.ScoredMemory, factBoost float64) []storage.ScoredMemory {
	out := make([]storage.ScoredMemory, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Memory.Type == "fact" {
			out[i].Score *= factBoost
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func nonFileMemories(in []storage.ScoredMemory) []storage.ScoredMemory {
	var out []storage.ScoredMemory
	for _, sm := range in {
		if !isFileMemory(sm.Memory.Type) {
			out = append(out, sm)
		}
	}
	return out
}

// BuildContext runs the full build_context pipeline for query within
// workspaceID, applying the fallback cascade when the happy path returns
// nothing usable.
func (b *Builder) BuildContext(ctx context.Context, query, workspaceID string) (Context, error) {
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return Context{}, err
	}

	candidates, err := b.store.SearchMemories(ctx, workspaceID, storage.SearchQuery{Vector: vec, Limit: b.cfg.K})
	if err != nil {
		return Context{}, memerrors.Wrap(memerrors.KindStorage, err, "vector search_memories failed")
	}

	candidates = filterEchoes(candidates)
	candidates = boostAndSort(candidates, b.cfg.FactBoost)

	final, fallbacks, err := b.applyFallbackCascade(ctx, query, workspaceID, candidates)
	if err != nil {
		return Context{}, err
	}
	for _, stage := range fallbacks {
		b.recorder.IncRetrievalFallback(stage)
	}

	text := b.compose(final)
	return Context{Text: text, Memories: final, Fallbacks: fallbacks}, nil
}

// applyFallbackCascade implements build_context step 4: a sequence of
// progressively broader lookups fired only as needed to rescue a sparse or
// file-only candidate set.
func (b *Builder) applyFallbackCascade(ctx context.Context, query, workspaceID string, candidates []storage.ScoredMemory) ([]storage.ScoredMemory, []string, error) {
	var fired []string

	if len(candidates) == 0 {
		textHits, err := b.store.SearchMemoriesText(ctx, query, workspaceID, b.cfg.K)
		if err != nil {
			return nil, nil, memerrors.Wrap(memerrors.KindStorage, err, "fallback text search failed")
		}
		candidates = toScored(textHits)
		fired = append(fired, "text_search")

		if len(candidates) == 0 {
			recent, err := b.store.GetRecentNonScreenMemories(ctx, workspaceID, b.cfg.K)
			if err != nil {
				return nil, nil, memerrors.Wrap(memerrors.KindStorage, err, "fallback get_recent_non_screen_memories failed")
			}
			candidates = toScored(recent)
			fired = append(fired, "recent_non_screen")
		}
	}

	if len(candidates) > 0 && len(nonFileMemories(candidates)) == 0 {
		textHits, err := b.store.SearchMemoriesText(ctx, query, workspaceID, b.cfg.K)
		if err != nil {
			return nil, nil, memerrors.Wrap(memerrors.KindStorage, err, "fallback file-injection text search failed")
		}
		candidates = append(candidates, toScored(textHits)...)
		fired = append(fired, "file_injection_text_search")

		if len(nonFileMemories(candidates)) == 0 {
			keywordHits, err := b.store.SearchMemoriesText(ctx, keywordAugment(query), workspaceID, b.cfg.K)
			if err != nil {
				return nil, nil, memerrors.Wrap(memerrors.KindStorage, err, "fallback keyword-augmented search failed")
			}
			candidates = append(candidates, toScored(keywordHits)...)
			fired = append(fired, "keyword_augmented_search")
		}
	}

	if len(nonFileMemories(candidates)) > 0 {
		candidates = dropScreenAndEchoes(candidates)
	}

	if len(candidates) == 0 {
		files, err := b.store.GetRecentFiles(ctx, workspaceID, b.cfg.K)
		if err != nil {
			return nil, nil, memerrors.Wrap(memerrors.KindStorage, err, "fallback get_recent_files failed")
		}
		candidates = toScored(files)
		fired = append(fired, "recent_files_last_resort")
	}

	return candidates, fired, nil
}

// keywordAugment widens a query for the keyword-augmented fallback stage by
// stripping punctuation noise an FTS5 MATCH clause would otherwise choke on.
func keywordAugment(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !(r == '_' || r == '-' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9'))
	})
	return strings.Join(fields, " ")
}

func dropScreenAndEchoes(in []storage.ScoredMemory) []storage.ScoredMemory {
	out := in[:0:0]
	for _, sm := range in {
		if strings.HasPrefix(sm.Memory.Type, "context.screen") || isConversationalEcho(sm.Memory.Type) {
			continue
		}
		out = append(out, sm)
	}
	return out
}

func toScored(memories []storage.Memory) []storage.ScoredMemory {
	out := make([]storage.ScoredMemory, len(memories))
	for i, m := range memories {
		out[i] = storage.ScoredMemory{Memory: m, Score: 1.0}
	}
	return out
}

// compose concatenates memory summaries newest-or-highest-score first,
// truncating at a summary boundary once the token budget is exhausted.
func (b *Builder) compose(memories []storage.ScoredMemory) string {
	var sb strings.Builder
	used := 0
	for _, sm := range memories {
		summary := sm.Memory.Content
		cost := b.counter.Count(summary, b.cfg.TokenMethod).Tokens
		if used > 0 && used+cost > b.cfg.TokenBudget {
			break
		}
		if used > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(summary)
		used += cost
		if used >= b.cfg.TokenBudget {
			break
		}
	}
	return sb.String()
}
