// Package sqlitestore is the reference storage.Client backed by SQLite:
// WAL mode with a busy timeout, schema-on-init, and an FTS5 virtual
// table with content-sync triggers for lexical search.
package sqlitestore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"memlayer/internal/memerrors"
	"memlayer/internal/storage"
)

// Store implements storage.Client over a *sql.DB opened with Open.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened, already-migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateMemory(ctx context.Context, workspaceID, memType, content string, confidence float64, metadata map[string]any, embedding []float32) (storage.Memory, error) {
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

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return storage.Memory{}, memerrors.Wrap(memerrors.KindStorage, err, "marshal memory metadata")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, workspace_id, type, content, confidence, metadata, embedding, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, m.ID, m.WorkspaceID, m.Type, m.Content, m.Confidence, string(metadataJSON), encodeEmbedding(embedding), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return storage.Memory{}, memerrors.Wrap(memerrors.KindStorage, err, "insert memory")
	}

	return m, nil
}

// SearchMemories performs vector search (cosine similarity computed in
// Go over active embeddings, since SQLite has no native vector index)
// when query.Vector is set, and falls back to FTS5 lexical search on
// query.Text otherwise.
func (s *Store) SearchMemories(ctx context.Context, workspaceID string, query storage.SearchQuery) ([]storage.ScoredMemory, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}

	if len(query.Vector) > 0 {
		return s.searchByVector(ctx, workspaceID, query.Vector, limit)
	}
	if query.Text != "" {
		memories, err := s.SearchMemoriesText(ctx, query.Text, workspaceID, limit)
		if err != nil {
			return nil, err
		}
		scored := make([]storage.ScoredMemory, len(memories))
		for i, m := range memories {
			scored[i] = storage.ScoredMemory{Memory: m, Score: 1.0}
		}
		return scored, nil
	}
	return nil, nil
}

func (s *Store) searchByVector(ctx context.Context, workspaceID string, vector []float32, limit int) ([]storage.ScoredMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, type, content, confidence, metadata, embedding, is_active, created_at, updated_at
		FROM memories WHERE workspace_id = ? AND is_active = 1 AND embedding IS NOT NULL
	`, workspaceID)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.KindStorage, err, "query memories for vector search")
	}
	defer func() { _ = rows.Close() }()

	var scored []storage.ScoredMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memerrors.Wrap(memerrors.KindStorage, err, "scan memory")
		}
		scored = append(scored, storage.ScoredMemory{Memory: m, Score: cosineSimilarity(vector, m.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, memerrors.Wrap(memerrors.KindStorage, err, "iterate memory rows")
	}

	sortByScoreDesc(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *Store) SearchMemoriesText(ctx context.Context, query, workspaceID string, limit int) ([]storage.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}
	ftsQuery := strings.Join(terms, " OR ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.workspace_id, m.type, m.content, m.confidence, m.metadata, m.embedding, m.is_active, m.created_at, m.updated_at
		FROM memories_fts f
		JOIN memories m ON m.rowid = f.rowid
		WHERE f.memories_fts MATCH ? AND m.workspace_id = ? AND m.is_active = 1
		LIMIT ?
	`, ftsQuery, workspaceID, limit)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.KindStorage, err, "FTS query")
	}
	defer func() { _ = rows.Close() }()

	var memories []storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memerrors.Wrap(memerrors.KindStorage, err, "scan memory")
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, memerrors.Wrap(memerrors.KindStorage, err, "iterate memory rows")
	}
	return memories, nil
}

func (s *Store) CreateRelationship(ctx context.Context, rel storage.Relationship) (storage.Relationship, error) {
	if !s.memoryExists(ctx, rel.FromMemoryID) {
		return storage.Relationship{}, memerrors.New(memerrors.KindValidation, "relationship endpoint does not resolve to a live memory: "+rel.FromMemoryID)
	}
	if !s.memoryExists(ctx, rel.ToMemoryID) {
		return storage.Relationship{}, memerrors.New(memerrors.KindValidation, "relationship endpoint does not resolve to a live memory: "+rel.ToMemoryID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO relationships (from_memory_id, to_memory_id, relationship_type, confidence)
		VALUES (?, ?, ?, ?)
	`, rel.FromMemoryID, rel.ToMemoryID, rel.RelationshipType, rel.Confidence)
	if err != nil {
		return storage.Relationship{}, memerrors.Wrap(memerrors.KindStorage, err, "insert relationship")
	}
	return rel, nil
}

func (s *Store) memoryExists(ctx context.Context, id string) bool {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ? AND is_active = 1`, id).Scan(&exists)
	return err == nil
}

func (s *Store) GetRecentFiles(ctx context.Context, workspaceID string, limit int) ([]storage.Memory, error) {
	return s.recentWhere(ctx, workspaceID, limit, "(type LIKE 'entity.file%' OR type LIKE 'context.screen%')")
}

func (s *Store) GetRecentNonScreenMemories(ctx context.Context, workspaceID string, limit int) ([]storage.Memory, error) {
	return s.recentWhere(ctx, workspaceID, limit,
		"type NOT LIKE 'context.screen%' AND type NOT LIKE 'fact.command%' AND type NOT LIKE 'fact.response%'")
}

func (s *Store) recentWhere(ctx context.Context, workspaceID string, limit int, extraWhere string) ([]storage.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`
		SELECT id, workspace_id, type, content, confidence, metadata, embedding, is_active, created_at, updated_at
		FROM memories
		WHERE workspace_id = ? AND is_active = 1 AND %s
		ORDER BY created_at DESC
		LIMIT ?
	`, extraWhere)

	rows, err := s.db.QueryContext(ctx, query, workspaceID, limit)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.KindStorage, err, "query recent memories")
	}
	defer func() { _ = rows.Close() }()

	var memories []storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memerrors.Wrap(memerrors.KindStorage, err, "scan memory")
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, memerrors.Wrap(memerrors.KindStorage, err, "iterate memory rows")
	}
	return memories, nil
}

// SaveCommand persists the command, its actions, and the memories used in
// a single transaction so a partially-written command is never observable.
func (s *Store) SaveCommand(ctx context.Context, req storage.CommandRequest, resp storage.CommandResponse, memoriesUsed []storage.ScoredMemory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerrors.Wrap(memerrors.KindStorage, err, "begin save_command transaction")
	}
	defer func() { _ = tx.Rollback() }()

	metaJSON, err := json.Marshal(req.Meta)
	if err != nil {
		return memerrors.Wrap(memerrors.KindStorage, err, "marshal command meta")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commands (command_id, user_id, text, assistant_text, timestamp, meta)
		VALUES (?, ?, ?, ?, ?, ?)
	`, req.CommandID, req.UserID, req.Text, resp.AssistantText, req.Timestamp, string(metaJSON))
	if err != nil {
		return memerrors.Wrap(memerrors.KindStorage, err, "insert command")
	}

	for _, action := range resp.Actions {
		paramsJSON, err := json.Marshal(action.Params)
		if err != nil {
			return memerrors.Wrap(memerrors.KindStorage, err, "marshal action params")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO actions (command_id, type, params) VALUES (?, ?, ?)
		`, req.CommandID, action.Type, string(paramsJSON)); err != nil {
			return memerrors.Wrap(memerrors.KindStorage, err, "insert action")
		}
	}

	for _, sm := range memoriesUsed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO command_memories (command_id, memory_id, score) VALUES (?, ?, ?)
		`, req.CommandID, sm.Memory.ID, sm.Score); err != nil {
			return memerrors.Wrap(memerrors.KindStorage, err, "insert command_memories")
		}
	}

	if err := tx.Commit(); err != nil {
		return memerrors.Wrap(memerrors.KindStorage, err, "commit save_command transaction")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (storage.Memory, error) {
	var m storage.Memory
	var metadataJSON sql.NullString
	var embeddingBlob []byte
	var isActive int

	err := row.Scan(&m.ID, &m.WorkspaceID, &m.Type, &m.Content, &m.Confidence, &metadataJSON, &embeddingBlob, &isActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return storage.Memory{}, err
	}

	m.IsActive = isActive != 0
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &m.Metadata); err != nil {
			return storage.Memory{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	m.Embedding = decodeEmbedding(embeddingBlob)
	return m, nil
}

func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := new(bytes.Buffer)
	for _, f := range vec {
		_ = binary.Write(buf, binary.LittleEndian, f)
	}
	return buf.Bytes()
}

func decodeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	n := len(blob) / 4
	vec := make([]float32, n)
	reader := bytes.NewReader(blob)
	for i := 0; i < n; i++ {
		_ = binary.Read(reader, binary.LittleEndian, &vec[i])
	}
	return vec
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

func sortByScoreDesc(scored []storage.ScoredMemory) {
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
}
