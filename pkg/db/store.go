package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Source is a collection of documents scanned for term mentions, such as a site section.
type Source struct {
	ID                    int64
	SourceType            string
	Title                 string
	URL                   string
	Meta                  string
	AddedAt               time.Time
	LastProcessedDocument int
}

// Mention records how often a term appears in one document of a source.
type Mention struct {
	TermID          string
	SourceID        int64
	Document        string
	Context         string
	OccurrenceCount int
	FirstSeenAt     time.Time
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// CreateOrGetSource returns the id of the source identified by url and title,
// inserting it when missing.
func CreateOrGetSource(ctx context.Context, db DBExecutor, sourceType, title, url, meta string) (int64, error) {
	trimmedSourceType := strings.TrimSpace(sourceType)
	if trimmedSourceType == "" {
		return 0, fmt.Errorf("sourceType must be non-empty")
	}

	const maxRetries = 3

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRowContext(ctx,
			`SELECT id FROM sources WHERE IFNULL(url, '') = ? AND IFNULL(title, '') = ?`,
			url, title,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return 0, err
		}

		res, err := db.ExecContext(ctx,
			`INSERT INTO sources (source_type, title, url, meta) VALUES (?, ?, ?, ?)`,
			trimmedSourceType, title, url, meta,
		)
		if err != nil {
			// A concurrent writer inserted the same source; select again.
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, err
		}
		return res.LastInsertId()
	}

	return 0, fmt.Errorf("could not create or get source after %d retries", maxRetries)
}

// GetSource loads a source by id.
func GetSource(ctx context.Context, db DBExecutor, sourceID int64) (Source, error) {
	var s Source
	var title, url, meta sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, source_type, title, url, meta, added_at, last_processed_document FROM sources WHERE id = ?`, sourceID,
	).Scan(&s.ID, &s.SourceType, &title, &url, &meta, &s.AddedAt, &s.LastProcessedDocument)
	if err != nil {
		return Source{}, err
	}
	s.Title, s.URL, s.Meta = title.String, url.String, meta.String
	return s, nil
}

// LinkTermToSource adds count occurrences of termID in a document of a source.
// The first context snippet seen is kept.
func LinkTermToSource(ctx context.Context, db DBExecutor, termID string, sourceID int64, document, snippet string, count int) error {
	if strings.TrimSpace(termID) == "" {
		return fmt.Errorf("termID must be non-empty")
	}
	if sourceID <= 0 {
		return fmt.Errorf("sourceID must be positive")
	}
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	_, err := db.ExecContext(ctx, `INSERT INTO term_mentions (term_id, source_id, document, context, occurrence_count, first_seen_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(term_id, source_id, document) DO UPDATE SET
	  occurrence_count = term_mentions.occurrence_count + excluded.occurrence_count,
	  context = CASE WHEN term_mentions.context = '' THEN excluded.context ELSE term_mentions.context END`,
		termID, sourceID, document, strings.TrimSpace(snippet), count, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert mention of %s: %w", termID, err)
	}
	return nil
}

// GetMentionsBySource returns every mention recorded for a source.
func GetMentionsBySource(ctx context.Context, db DBExecutor, sourceID int64) ([]Mention, error) {
	return queryMentions(ctx, db, `WHERE source_id = ? ORDER BY document, term_id`, sourceID)
}

// GetMentionsByTerm returns the documents mentioning termID, most mentions first.
func GetMentionsByTerm(ctx context.Context, db DBExecutor, termID string, limit int) ([]Mention, error) {
	if limit <= 0 {
		limit = -1
	}
	return queryMentions(ctx, db, `WHERE term_id = ? ORDER BY occurrence_count DESC, id LIMIT ?`, termID, limit)
}

func queryMentions(ctx context.Context, db DBExecutor, where string, args ...any) ([]Mention, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT term_id, source_id, document, context, occurrence_count, first_seen_at FROM term_mentions `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mention
	for rows.Next() {
		var m Mention
		if err := rows.Scan(&m.TermID, &m.SourceID, &m.Document, &m.Context, &m.OccurrenceCount, &m.FirstSeenAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSourceProgress returns the index of the last processed document for a source, or -1.
func GetSourceProgress(ctx context.Context, db DBExecutor, sourceID int64) (int, error) {
	var index int
	err := db.QueryRowContext(ctx, "SELECT last_processed_document FROM sources WHERE id = ?", sourceID).Scan(&index)
	if err != nil {
		return 0, err
	}
	return index, nil
}

// UpdateSourceProgress updates the last processed document index.
func UpdateSourceProgress(ctx context.Context, db DBExecutor, sourceID int64, index int) error {
	_, err := db.ExecContext(ctx, "UPDATE sources SET last_processed_document = ? WHERE id = ?", index, sourceID)
	return err
}
