// Package tokencount estimates token counts for chat content under three
// methods (exact, estimated, approximate), backed by a bounded, TTL-evicting
// LRU cache.
package tokencount

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tiktoken-go/tokenizer"
)

// Method identifies how a token count was produced.
type Method string

const (
	// MethodExact uses a real BPE tokenizer (tiktoken, GPT-4 encoding family).
	MethodExact Method = "exact"
	// MethodEstimated uses a provider-specific characters-per-token ratio.
	MethodEstimated Method = "estimated"
	// MethodApproximate uses a flat 4-characters-per-token heuristic.
	MethodApproximate Method = "approximate"
)

// Accuracy labels how a result was ultimately produced, distinguishing a
// successful exact count from one that fell back after an encoder error.
type Accuracy string

const (
	AccuracyExact      Accuracy = "exact"
	AccuracyEstimated  Accuracy = "estimated"
	AccuracyApproximate Accuracy = "approximate"
	// AccuracyFallback marks a result that fell back to approximate counting
	// after the requested exact/estimated method failed.
	AccuracyFallback Accuracy = "fallback"
)

// Result is the outcome of a token-count request.
type Result struct {
	Tokens   int
	Method   Method
	Accuracy Accuracy
}

// Message is the minimal shape counted by CountMessage; it mirrors the role
// and content fields of chatimport.NormalizedMessage without importing that
// package (avoids a dependency cycle).
type Message struct {
	Role    string
	Content string
}

// Conversation is the minimal shape counted by CountConversation.
type Conversation struct {
	Provider string
	Messages []Message
}

// CacheStats reports cumulative cache activity.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalTime time.Duration
}

const defaultCacheSize = 4096
const defaultTTL = time.Hour

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// Counter counts tokens under the exact/estimated/approximate methods and
// caches results keyed by (method, content hash).
type Counter struct {
	codec tokenizer.Codec // nil if the exact encoder failed to initialize

	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	totalTime atomic.Int64 // nanoseconds
}

// New creates a Counter with a bounded LRU cache of the given size (entries)
// and TTL. A size <= 0 uses defaultCacheSize; a ttl <= 0 uses defaultTTL.
func New(cacheSize int, ttl time.Duration) (*Counter, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	c := &Counter{ttl: ttl}

	cache, err := lru.NewWithEvict[string, cacheEntry](cacheSize, func(_ string, _ cacheEntry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token count cache: %w", err)
	}
	c.cache = cache

	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err == nil {
		c.codec = codec
	}
	// A failed exact-encoder initialization is not fatal: Count falls back to
	// approximate counting and annotates the result as AccuracyFallback.

	return c, nil
}

// Count returns a token count for text under the given method, using the
// cache when possible.
func (c *Counter) Count(text string, method Method) Result {
	start := time.Now()
	defer func() { c.totalTime.Add(int64(time.Since(start))) }()

	key := cacheKey(method, text)
	if entry, ok := c.cache.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			c.hits.Add(1)
			return entry.result
		}
		c.cache.Remove(key)
	}
	c.misses.Add(1)

	result := c.compute(text, method)
	c.cache.Add(key, cacheEntry{result: result, expiresAt: time.Now().Add(c.ttl)})
	return result
}

func (c *Counter) compute(text string, method Method) Result {
	switch method {
	case MethodExact:
		if c.codec != nil {
			if n, err := c.codec.Count(text); err == nil {
				return Result{Tokens: n, Method: MethodExact, Accuracy: AccuracyExact}
			}
		}
		// Exact encoder missing or failed: fall back to approximate, annotated.
		return Result{Tokens: approximateCount(text), Method: MethodApproximate, Accuracy: AccuracyFallback}
	case MethodEstimated:
		return Result{Tokens: approximateCount(text), Method: MethodEstimated, Accuracy: AccuracyEstimated}
	case MethodApproximate:
		return Result{Tokens: approximateCount(text), Method: MethodApproximate, Accuracy: AccuracyApproximate}
	default:
		return Result{Tokens: approximateCount(text), Method: MethodApproximate, Accuracy: AccuracyFallback}
	}
}

// CountWithRatio estimates tokens using a provider-specific characters-per-token
// ratio (Anthropic ~3.5, Gemini ~3.8) — the "estimated" method.
func (c *Counter) CountWithRatio(text string, charsPerToken float64) Result {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	tokens := int(math.Ceil(float64(len(text)) / charsPerToken))
	return Result{Tokens: tokens, Method: MethodEstimated, Accuracy: AccuracyEstimated}
}

// CountMessage counts tokens for a single message formatted as "{role}: {content}".
func (c *Counter) CountMessage(msg Message, method Method) Result {
	return c.Count(fmt.Sprintf("%s: %s", msg.Role, msg.Content), method)
}

// CountConversation sums per-message token counts across a conversation.
func (c *Counter) CountConversation(conv Conversation, method Method) Result {
	total := 0
	acc := AccuracyExact
	for _, m := range conv.Messages {
		r := c.CountMessage(m, method)
		total += r.Tokens
		if r.Accuracy != AccuracyExact {
			acc = r.Accuracy
		}
	}
	return Result{Tokens: total, Method: method, Accuracy: acc}
}

// RecommendedMethod picks a counting method based on a substring match against
// known provider-name families.
func RecommendedMethod(providerName string) Method {
	p := strings.ToLower(providerName)
	switch {
	case strings.Contains(p, "openai"), strings.Contains(p, "gpt"):
		return MethodExact
	case strings.Contains(p, "claude"), strings.Contains(p, "anthropic"),
		strings.Contains(p, "gemini"), strings.Contains(p, "google"):
		return MethodEstimated
	default:
		return MethodApproximate
	}
}

// Stats returns a snapshot of cumulative cache activity.
func (c *Counter) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		TotalTime: time.Duration(c.totalTime.Load()),
	}
}

func approximateCount(text string) int {
	return int(math.Ceil(float64(len(text)) / 4.0))
}

func cacheKey(method Method, text string) string {
	sum := sha256.Sum256([]byte(text))
	return string(method) + ":" + hex.EncodeToString(sum[:])
}
