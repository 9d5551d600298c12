package sqlitestore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver
)

// Open opens (creating if necessary) a SQLite database at dbPath with WAL
// mode and a busy timeout, and ensures the schema exists.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// createSchema creates all required tables, indices, and the FTS5 lexical
// index backing the workspace-scoped memory store.
func createSchema(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS workspaces (
			id TEXT PRIMARY KEY,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			confidence REAL NOT NULL,
			metadata TEXT,
			embedding BLOB,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS relationships (
			from_memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			to_memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			relationship_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			PRIMARY KEY (from_memory_id, to_memory_id, relationship_type)
		)`,

		`CREATE TABLE IF NOT EXISTS commands (
			command_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			assistant_text TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			meta TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS actions (
			command_id TEXT NOT NULL REFERENCES commands(command_id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			params TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS command_memories (
			command_id TEXT NOT NULL REFERENCES commands(command_id) ON DELETE CASCADE,
			memory_id TEXT NOT NULL REFERENCES memories(id),
			score REAL NOT NULL,
			PRIMARY KEY (command_id, memory_id)
		)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			id, content,
			content=memories
		)`,
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, id, content) VALUES (new.rowid, new.id, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
			UPDATE memories_fts SET id = new.id, content = new.content WHERE rowid = new.rowid;
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
			DELETE FROM memories_fts WHERE rowid = old.rowid;
		END`,
	}
	for _, trigger := range triggers {
		if _, err := db.Exec(trigger); err != nil {
			return fmt.Errorf("failed to create FTS trigger: %w", err)
		}
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_memories_workspace ON memories(workspace_id)",
		"CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type)",
		"CREATE INDEX IF NOT EXISTS idx_memories_active ON memories(is_active)",
		"CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_memory_id)",
		"CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_memory_id)",
		"CREATE INDEX IF NOT EXISTS idx_command_memories_command ON command_memories(command_id)",
	}
	for _, idx := range indices {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
