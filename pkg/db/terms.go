package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/japaniel/glossary/pkg/dictionary"
)

// TermStore keeps glossary terms in SQLite and serves them as a term source.
type TermStore struct {
	DB *sql.DB
}

func NewTermStore(conn *sql.DB) *TermStore {
	return &TermStore{DB: conn}
}

// UpsertTerm inserts or replaces a term. A new term is placed after all existing
// ones; an updated term keeps its position.
func UpsertTerm(ctx context.Context, db DBExecutor, t dictionary.Term) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("term id must be non-empty")
	}
	aliases, err := json.Marshal(nonNil(t.Aliases))
	if err != nil {
		return err
	}
	related, err := json.Marshal(nonNil(t.RelatedTerms))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO glossary_terms
		(id, term, definition, pronunciation, aliases, related_terms, category, difficulty, example, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM glossary_terms))
		ON CONFLICT(id) DO UPDATE SET
		  term = excluded.term,
		  definition = excluded.definition,
		  pronunciation = excluded.pronunciation,
		  aliases = excluded.aliases,
		  related_terms = excluded.related_terms,
		  category = excluded.category,
		  difficulty = excluded.difficulty,
		  example = excluded.example,
		  updated_at = CURRENT_TIMESTAMP`,
		t.ID, t.Term, t.Definition, t.Pronunciation, string(aliases), string(related),
		t.Category, t.Difficulty, t.Example)
	if err != nil {
		return fmt.Errorf("upsert term %s: %w", t.ID, err)
	}
	return nil
}

// ImportTerms upserts terms in one transaction and returns how many were written.
func (s *TermStore) ImportTerms(ctx context.Context, terms []dictionary.Term) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()
	for _, t := range terms {
		if err := UpsertTerm(ctx, tx, t); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(terms), nil
}

// DeleteTerm removes a term. Removing a missing term is not an error.
func (s *TermStore) DeleteTerm(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM glossary_terms WHERE id = ?`, id)
	return err
}

// ListTerms returns every stored term in insertion order.
func (s *TermStore) ListTerms(ctx context.Context) ([]dictionary.Term, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, term, definition, pronunciation, aliases, related_terms,
		category, difficulty, example FROM glossary_terms ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	defer rows.Close()

	var out []dictionary.Term
	for rows.Next() {
		var t dictionary.Term
		var aliases, related string
		if err := rows.Scan(&t.ID, &t.Term, &t.Definition, &t.Pronunciation, &aliases, &related,
			&t.Category, &t.Difficulty, &t.Example); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aliases), &t.Aliases); err != nil {
			return nil, fmt.Errorf("term %s: bad aliases: %w", t.ID, err)
		}
		if err := json.Unmarshal([]byte(related), &t.RelatedTerms); err != nil {
			return nil, fmt.Errorf("term %s: bad related terms: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
