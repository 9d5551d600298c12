// Command memlayer-import runs a chat export file through the full
// ingestion pipeline — parse, validate, chunk, extract, deduplicate,
// persist — and prints a summary. It is an offline batch front end for
// the same pipeline internal/command.Processor drives per live command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"memlayer/internal/chatimport"
	"memlayer/internal/chunking"
	"memlayer/internal/completion"
	"memlayer/internal/dedup"
	"memlayer/internal/extraction"
	"memlayer/internal/memconfig"
	"memlayer/internal/memlog"
	"memlayer/internal/metrics"
	"memlayer/internal/storage"
	"memlayer/internal/storage/memstore"
	"memlayer/internal/storage/sqlitestore"
	"memlayer/internal/tokencount"
)

var logger = memlog.NewLogger("memlayer-import")

// mustFprintf ignores fmt.Fprintf errors; CLI output writes are not
// worth propagating a write error for.
func mustFprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// importConfig holds the flags this command accepts.
type importConfig struct {
	InputPath      string
	WorkspaceID    string
	ConfigPath     string
	DBPath         string
	Provider       string
	APIKey         string
	Model          string
	Types          string
	Concurrency    int
	MetricsAddr    string
	RequestTimeout time.Duration
}

func main() {
	var cfg importConfig
	var showHelp bool

	flag.StringVar(&cfg.InputPath, "input", "", "Path to a chat export file (OpenAI or Anthropic format)")
	flag.StringVar(&cfg.WorkspaceID, "workspace", "default", "Workspace id to attribute imported memories to")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to a memconfig YAML file (optional)")
	flag.StringVar(&cfg.DBPath, "db", "", "Path to a SQLite database file (default: in-memory store)")
	flag.StringVar(&cfg.Provider, "provider", "openai", "Completion provider: openai or anthropic")
	flag.StringVar(&cfg.APIKey, "api-key", os.Getenv("MEMLAYER_API_KEY"), "API key for the completion provider")
	flag.StringVar(&cfg.Model, "model", "gpt-4o-mini", "Model name passed to the completion provider")
	flag.StringVar(&cfg.Types, "types", "entity,fact,decision", "Comma-separated memory types to extract")
	flag.IntVar(&cfg.Concurrency, "concurrency", 4, "Bounded concurrency for per-chunk extraction")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (e.g. :9090); empty disables metrics")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", 60*time.Second, "Per-request timeout for completion provider calls")
	flag.BoolVar(&showHelp, "help", false, "Show help")

	flag.Usage = func() {
		mustFprintf(os.Stderr, "memlayer-import - Offline Conversation Ingestion Tool\n\n")
		mustFprintf(os.Stderr, "Usage:\n")
		mustFprintf(os.Stderr, "  %s -input <export.json> [options]\n\n", os.Args[0])
		mustFprintf(os.Stderr, "Description:\n")
		mustFprintf(os.Stderr, "  Reads a chat export, runs it through parsing, validation, chunking,\n")
		mustFprintf(os.Stderr, "  extraction, deduplication, and storage, then prints a summary.\n")
		mustFprintf(os.Stderr, "  Completion calls run through a timeout, circuit breaker, and rate-limit\n")
		mustFprintf(os.Stderr, "  middleware chain.\n\n")
		mustFprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if cfg.InputPath == "" {
		mustFprintf(os.Stderr, "Error: -input flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		mustFprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg importConfig) error {
	if cfg.ConfigPath != "" {
		if err := memconfig.Load(cfg.ConfigPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Info("loaded config from %s", cfg.ConfigPath)
	}

	mcfg := memconfig.GetConfig()

	store, closeStore, err := openStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	baseLLM, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("create completion provider: %w", err)
	}
	breaker := completion.NewCircuitBreaker(completion.DefaultCircuitConfig)
	llm := completion.Chain(baseLLM,
		completion.TimeoutMiddleware(cfg.RequestTimeout),
		completion.CircuitBreakerMiddleware(breaker),
		completion.RateLimitMiddleware(),
	)

	counter, err := tokencount.New(0, 0)
	if err != nil {
		return fmt.Errorf("create token counter: %w", err)
	}

	chunkRegistry := chunking.NewRegistry(counter)
	chunkRegistry.Register(chunking.NewSlidingWindowStrategy(counter))
	chunkRegistry.Register(chunking.NewConversationBoundaryStrategy(counter))
	chunkRegistry.Register(chunking.NewSemanticStrategy(counter))

	registry := extraction.NewRegistry()
	strategy := extraction.NewStrategy(llm, registry)
	deduper := dedup.NewDeduplicator()

	if cfg.MetricsAddr != "" {
		recorder := metrics.NewPrometheusRecorder()
		strategy.SetRecorder(recorder)
		deduper.SetRecorder(recorder)
		startMetricsServer(cfg.MetricsAddr)
	}

	types := splitTypes(cfg.Types)
	chunkCfg := chunking.Config{
		MaxTokensPerChunk: mcfg.Chunking.MaxTokensPerChunk,
		OverlapTokens:     mcfg.Chunking.OverlapTokens,
		OverlapPercentage: mcfg.Chunking.OverlapPercentage,
		MinChunkSize:      mcfg.Chunking.MinChunkSize,
		Strategy:          chunking.StrategyName(mcfg.Chunking.Strategy),
	}

	valid, invalid, err := chatimport.ImportFile(chatimport.NewRegistry(), cfg.InputPath)
	if err != nil {
		return fmt.Errorf("import file: %w", err)
	}

	logger.Info("parsed %d valid conversation(s), %d invalid", len(valid), len(invalid))
	for _, inv := range invalid {
		logger.Warn("conversation %s failed validation: %d error(s)", inv.Conversation.ID, len(inv.Errors))
	}

	ctx := context.Background()

	var totalMemories, totalRelationships, totalDuplicates int
	start := time.Now()

	for _, conv := range valid {
		results, err := strategy.Extract(ctx, conv, cfg.WorkspaceID, types, chunkRegistry, chunkCfg, false, cfg.Concurrency)
		if err != nil {
			logger.Error("extraction failed for conversation %s: %v", conv.ID, err)
			continue
		}

		dedupResult := deduper.Deduplicate(results)
		relationships := dedup.MergeRelationships(dedupResult.UniqueMemories, dedup.ResolvedRelationships(results))
		totalDuplicates += dedupResult.DuplicatesFound

		storageID := make(map[string]string, len(dedupResult.UniqueMemories))
		for _, m := range dedupResult.UniqueMemories {
			created, err := store.CreateMemory(ctx, cfg.WorkspaceID, m.Type, m.Content, m.Confidence, m.Metadata, m.Embedding)
			if err != nil {
				logger.Error("persist memory failed for conversation %s: %v", conv.ID, err)
				continue
			}
			storageID[m.ID] = created.ID
			totalMemories++
		}

		for _, rel := range relationships {
			fromID, fromOK := storageID[rel.FromMemoryID]
			toID, toOK := storageID[rel.ToMemoryID]
			if !fromOK || !toOK {
				logger.Warn("dropping relationship for conversation %s: endpoint did not persist", conv.ID)
				continue
			}
			if _, err := store.CreateRelationship(ctx, storage.Relationship{
				FromMemoryID:     fromID,
				ToMemoryID:       toID,
				RelationshipType: rel.RelationshipType,
				Confidence:       rel.Confidence,
			}); err != nil {
				logger.Error("persist relationship failed for conversation %s: %v", conv.ID, err)
				continue
			}
			totalRelationships++
		}
	}

	printSummary(cfg, len(valid), len(invalid), totalMemories, totalRelationships, totalDuplicates, time.Since(start))
	return nil
}

// startMetricsServer serves the Prometheus scrape endpoint on addr in the
// background; a failure after startup is logged, never fatal to the import.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped: %v", err)
		}
	}()
	logger.Info("serving Prometheus metrics on %s/metrics", addr)
}

func openStore(dbPath string) (storage.Client, func(), error) {
	if dbPath == "" {
		return memstore.New(), func() {}, nil
	}
	db, err := sqlitestore.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return sqlitestore.New(db), func() { _ = db.Close() }, nil
}

func newProvider(cfg importConfig) (completion.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key supplied (set -api-key or MEMLAYER_API_KEY)")
	}
	switch cfg.Provider {
	case "openai":
		return completion.NewOpenAIProvider(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return completion.NewAnthropicProvider(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai or anthropic)", cfg.Provider)
	}
}

func splitTypes(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printSummary(cfg importConfig, valid, invalid, memories, relationships, duplicates int, elapsed time.Duration) {
	fmt.Printf("Import summary for %s (workspace %q)\n", cfg.InputPath, cfg.WorkspaceID)
	fmt.Printf("  Conversations:  %d valid, %d invalid\n", valid, invalid)
	fmt.Printf("  Memories:       %d created\n", memories)
	fmt.Printf("  Relationships:  %d created\n", relationships)
	fmt.Printf("  Duplicates:     %d merged\n", duplicates)
	fmt.Printf("  Elapsed:        %s\n", elapsed.Round(time.Millisecond))
}
