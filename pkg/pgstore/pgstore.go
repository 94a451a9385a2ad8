// Package pgstore keeps glossary terms and interactions in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/telemetry"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS glossary_terms (
	id TEXT PRIMARY KEY,
	term TEXT NOT NULL,
	definition TEXT NOT NULL,
	pronunciation TEXT NOT NULL DEFAULT '',
	also_known_as TEXT[] NOT NULL DEFAULT '{}',
	related_terms TEXT[] NOT NULL DEFAULT '{}',
	category TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT '',
	example TEXT NOT NULL DEFAULT '',
	position BIGSERIAL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS glossary_interactions (
	id BIGINT PRIMARY KEY,
	term_id TEXT,
	term TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	interaction_type TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	correct BOOLEAN NOT NULL DEFAULT false,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	difficulty TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_created ON glossary_interactions(created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_type_created ON glossary_interactions(interaction_type, created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_user_created ON glossary_interactions(user_id, created_at);
`

type Config struct {
	DSN string

	MaxConns int32
	MinConns int32
}

// Store is a telemetry.Store and index.Source backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and makes sure the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Append(ctx context.Context, e telemetry.Event) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = b
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO glossary_interactions
		(id, term_id, term, session_id, user_id, interaction_type, metadata, correct, response_time_ms, difficulty, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.TermID, e.Term, e.SessionID, e.UserID, string(e.Type), meta,
		e.Correct, e.ResponseTimeMs, e.Difficulty, ts)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// selectEvents builds the SELECT for q. Arguments are numbered in the order they are added.
func selectEvents(q telemetry.Query) (string, []any) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !q.Since.IsZero() {
		where = append(where, "created_at >= "+arg(q.Since))
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at < "+arg(q.Until))
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		where = append(where, "interaction_type = ANY("+arg(types)+")")
	}
	if q.UserID != "" {
		where = append(where, "user_id = "+arg(q.UserID))
	}
	if q.TermID != "" {
		where = append(where, "term_id = "+arg(q.TermID))
	}
	if q.FoundOnly != nil {
		// A found value that is not a JSON boolean never matches.
		where = append(where, "metadata->'found' = to_jsonb("+arg(*q.FoundOnly)+"::boolean)")
	}

	sql := `SELECT id, term_id, term, session_id, user_id, interaction_type, metadata, correct,
		response_time_ms, difficulty, created_at FROM glossary_interactions`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at, id"
	if q.Limit > 0 {
		sql += " LIMIT " + arg(q.Limit)
	}
	return sql, args
}

func (s *Store) Query(ctx context.Context, q telemetry.Query) ([]telemetry.Event, error) {
	sql, args := selectEvents(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (telemetry.Event, error) {
		var e telemetry.Event
		var typ string
		var meta []byte
		if err := row.Scan(&e.ID, &e.TermID, &e.Term, &e.SessionID, &e.UserID, &typ, &meta,
			&e.Correct, &e.ResponseTimeMs, &e.Difficulty, &e.Timestamp); err != nil {
			return e, err
		}
		e.Type = telemetry.InteractionType(typ)
		e.Timestamp = e.Timestamp.UTC()
		if len(meta) > 0 && string(meta) != "{}" {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return e, fmt.Errorf("decode metadata of event %d: %w", e.ID, err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan interactions: %w", err)
	}
	return events, nil
}

// UpsertTerms inserts or replaces terms in one transaction. Existing terms keep their position.
func (s *Store) UpsertTerms(ctx context.Context, terms []dictionary.Term) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, t := range terms {
		if t.ID == "" {
			return 0, errors.New("term without id")
		}
		_, err := tx.Exec(ctx, `INSERT INTO glossary_terms
			(id, term, definition, pronunciation, also_known_as, related_terms, category, difficulty, example)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				term = EXCLUDED.term, definition = EXCLUDED.definition,
				pronunciation = EXCLUDED.pronunciation, also_known_as = EXCLUDED.also_known_as,
				related_terms = EXCLUDED.related_terms, category = EXCLUDED.category,
				difficulty = EXCLUDED.difficulty, example = EXCLUDED.example, updated_at = now()`,
			t.ID, t.Term, t.Definition, t.Pronunciation, nonNil(t.Aliases), nonNil(t.RelatedTerms),
			t.Category, t.Difficulty, t.Example)
		if err != nil {
			return 0, fmt.Errorf("upsert term %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(terms), nil
}

// ListTerms returns every stored term in insertion order.
func (s *Store) ListTerms(ctx context.Context) ([]dictionary.Term, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, term, definition, pronunciation, also_known_as,
		related_terms, category, difficulty, example FROM glossary_terms ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query terms: %w", err)
	}
	terms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dictionary.Term, error) {
		var t dictionary.Term
		err := row.Scan(&t.ID, &t.Term, &t.Definition, &t.Pronunciation, &t.Aliases,
			&t.RelatedTerms, &t.Category, &t.Difficulty, &t.Example)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan terms: %w", err)
	}
	return terms, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
