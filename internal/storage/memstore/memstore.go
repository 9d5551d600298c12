// Package memstore is an in-memory storage.Client used by tests and for
// running the pipeline without SQLite.
package memstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"memlayer/internal/memerrors"
	"memlayer/internal/storage"
)

// Store is an in-memory, mutex-guarded storage.Client.
type Store struct {
	mu            sync.RWMutex
	memories      map[string]storage.Memory
	relationships []storage.Relationship
	commands      []savedCommand
}

type savedCommand struct {
	Request      storage.CommandRequest
	Response     storage.CommandResponse
	MemoriesUsed []storage.ScoredMemory
}

// New returns an empty Store.
func New() *Store {
	return &Store{memories: make(map[string]storage.Memory)}
}

func (s *Store) CreateMemory(_ context.Context, workspaceID, memType, content string, confidence float64, metadata map[string]any, embedding []float32) (storage.Memory, error) {
	now := time.Now()
	m := storage.Memory{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Type:        memType,
		Content:     content,
		Confidence:  confidence,
		Metadata:    metadata,
		Embedding:   embedding,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.memories[m.ID] = m
	s.mu.Unlock()
	return m, nil
}

// SearchMemories ranks active memories in the workspace by cosine
// similarity to query.Vector when provided, falling back to a
// substring-match score against query.Text otherwise.
func (s *Store) SearchMemories(_ context.Context, workspaceID string, query storage.SearchQuery) ([]storage.ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}

	var scored []storage.ScoredMemory
	for _, m := range s.memories {
		if m.WorkspaceID != workspaceID || !m.IsActive {
			continue
		}
		score, ok := scoreMemory(m, query)
		if !ok {
			continue
		}
		scored = append(scored, storage.ScoredMemory{Memory: m, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func scoreMemory(m storage.Memory, query storage.SearchQuery) (float64, bool) {
	if len(query.Vector) > 0 {
		if len(m.Embedding) == 0 {
			return 0, false
		}
		return cosineSimilarity(query.Vector, m.Embedding), true
	}
	if query.Text != "" {
		if strings.Contains(strings.ToLower(m.Content), strings.ToLower(query.Text)) {
			return 1.0, true
		}
		return 0, false
	}
	return 0.5, true
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func (s *Store) SearchMemoriesText(_ context.Context, query, workspaceID string, limit int) ([]storage.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	lowerQuery := strings.ToLower(query)

	var matches []storage.Memory
	for _, m := range s.memories {
		if m.WorkspaceID != workspaceID || !m.IsActive {
			continue
		}
		if lowerQuery == "" || strings.Contains(strings.ToLower(m.Content), lowerQuery) {
			matches = append(matches, m)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) CreateRelationship(_ context.Context, rel storage.Relationship) (storage.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.memories[rel.FromMemoryID]; !ok || !m.IsActive {
		return storage.Relationship{}, memerrors.New(memerrors.KindValidation, "relationship endpoint does not resolve to a live memory: "+rel.FromMemoryID)
	}
	if m, ok := s.memories[rel.ToMemoryID]; !ok || !m.IsActive {
		return storage.Relationship{}, memerrors.New(memerrors.KindValidation, "relationship endpoint does not resolve to a live memory: "+rel.ToMemoryID)
	}

	s.relationships = append(s.relationships, rel)
	return rel, nil
}

func (s *Store) GetRecentFiles(_ context.Context, workspaceID string, limit int) ([]storage.Memory, error) {
	return s.recentByPredicate(workspaceID, limit, func(m storage.Memory) bool {
		return strings.HasPrefix(m.Type, "entity.file") || strings.HasPrefix(m.Type, "context.screen")
	})
}

func (s *Store) GetRecentNonScreenMemories(_ context.Context, workspaceID string, limit int) ([]storage.Memory, error) {
	return s.recentByPredicate(workspaceID, limit, func(m storage.Memory) bool {
		return !strings.HasPrefix(m.Type, "context.screen") &&
			!strings.HasPrefix(m.Type, "fact.command") &&
			!strings.HasPrefix(m.Type, "fact.response")
	})
}

func (s *Store) recentByPredicate(workspaceID string, limit int, keep func(storage.Memory) bool) ([]storage.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	var matches []storage.Memory
	for _, m := range s.memories {
		if m.WorkspaceID != workspaceID || !m.IsActive {
			continue
		}
		if keep(m) {
			matches = append(matches, m)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) SaveCommand(_ context.Context, req storage.CommandRequest, resp storage.CommandResponse, memoriesUsed []storage.ScoredMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, savedCommand{Request: req, Response: resp, MemoriesUsed: memoriesUsed})
	return nil
}

// Commands returns a snapshot of all saved commands, for test assertions.
func (s *Store) Commands() []storage.CommandRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.CommandRequest, len(s.commands))
	for i, c := range s.commands {
		out[i] = c.Request
	}
	return out
}

// MarkInactive marks a memory inactive (used to model the "merged_from
// members marked inactive, not deleted" Open Question decision).
func (s *Store) MarkInactive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memories[id]; ok {
		m.IsActive = false
		s.memories[id] = m
	}
}
