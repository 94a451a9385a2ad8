// Package db is the SQLite persistence layer: glossary terms, interaction
// events and the content sources scanned for term mentions.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS glossary_terms (
	id TEXT PRIMARY KEY,
	term TEXT NOT NULL,
	definition TEXT NOT NULL,
	pronunciation TEXT NOT NULL DEFAULT '',
	aliases TEXT NOT NULL DEFAULT '[]',
	related_terms TEXT NOT NULL DEFAULT '[]',
	category TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT '',
	example TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS glossary_interactions (
	id INTEGER PRIMARY KEY,
	term_id TEXT,
	term TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	interaction_type TEXT NOT NULL,
	metadata TEXT,
	found INTEGER,
	correct INTEGER NOT NULL DEFAULT 0,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	difficulty TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_created ON glossary_interactions(created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_type_created ON glossary_interactions(interaction_type, created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_user ON glossary_interactions(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_term ON glossary_interactions(term_id);

CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_type TEXT NOT NULL,
	title TEXT,
	url TEXT,
	meta TEXT,
	added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_processed_document INTEGER NOT NULL DEFAULT -1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sources_identity ON sources(IFNULL(url, ''), IFNULL(title, ''));

CREATE TABLE IF NOT EXISTS term_mentions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_id TEXT NOT NULL,
	source_id INTEGER NOT NULL REFERENCES sources(id),
	document TEXT NOT NULL DEFAULT '',
	context TEXT NOT NULL DEFAULT '',
	occurrence_count INTEGER NOT NULL DEFAULT 0,
	first_seen_at DATETIME NOT NULL,
	UNIQUE(term_id, source_id, document)
);
CREATE INDEX IF NOT EXISTS idx_term_mentions_term ON term_mentions(term_id)
`

// Open opens a SQLite database and applies the schema. ":memory:" databases
// are limited to one connection so every query sees the same data.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}
	return conn, nil
}

// InitDB runs the schema statements on the given connection. It is idempotent.
func InitDB(db *sql.DB) error {
	return InitDBContext(context.Background(), db)
}

// InitDBContext is InitDB with a context.
func InitDBContext(ctx context.Context, db *sql.DB) error {
	for _, s := range strings.Split(schemaSQL, ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
