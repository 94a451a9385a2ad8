package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/japaniel/glossary/pkg/telemetry"
)

// EventStore is a telemetry.Store over the glossary_interactions table.
// Window, type, user, term and found filters run in SQL.
type EventStore struct {
	DB *sql.DB
}

func NewEventStore(conn *sql.DB) *EventStore {
	return &EventStore{DB: conn}
}

func (s *EventStore) Append(ctx context.Context, e telemetry.Event) error {
	return InsertEvent(ctx, s.DB, e)
}

// InsertEvent writes one event through db, which may be a transaction.
func InsertEvent(ctx context.Context, db DBExecutor, e telemetry.Event) error {
	var meta any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(b)
	}
	var found any
	if f, ok := e.Found(); ok {
		found = f
	}
	var termID any
	if e.TermID != nil {
		termID = *e.TermID
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := db.ExecContext(ctx, `INSERT INTO glossary_interactions
		(id, term_id, term, session_id, user_id, interaction_type, metadata, found, correct, response_time_ms, difficulty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, termID, e.Term, e.SessionID, e.UserID, string(e.Type), meta, found,
		e.Correct, e.ResponseTimeMs, e.Difficulty, ts.UnixNano())
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *EventStore) Query(ctx context.Context, q telemetry.Query) ([]telemetry.Event, error) {
	var where []string
	var args []any
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, q.Until.UnixNano())
	}
	if len(q.Types) > 0 {
		where = append(where, "interaction_type IN (?"+strings.Repeat(", ?", len(q.Types)-1)+")")
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}
	if q.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.TermID != "" {
		where = append(where, "term_id = ?")
		args = append(args, q.TermID)
	}
	if q.FoundOnly != nil {
		where = append(where, "found = ?")
		args = append(args, *q.FoundOnly)
	}

	query := `SELECT id, term_id, term, session_id, user_id, interaction_type, metadata, correct,
		response_time_ms, difficulty, created_at FROM glossary_interactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Event
	for rows.Next() {
		var e telemetry.Event
		var termID, meta sql.NullString
		var typ string
		var ts int64
		if err := rows.Scan(&e.ID, &termID, &e.Term, &e.SessionID, &e.UserID, &typ, &meta, &e.Correct,
			&e.ResponseTimeMs, &e.Difficulty, &ts); err != nil {
			return nil, err
		}
		if termID.Valid {
			e.TermID = &termID.String
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", e.ID, err)
			}
		}
		e.Type = telemetry.InteractionType(typ)
		e.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchedEventStore appends through a BatchWriter so that bursts of events
// share a transaction. Reads flush pending writes first.
type BatchedEventStore struct {
	*EventStore
	bw *BatchWriter
}

// NewBatchedEventStore wraps conn. Writes are committed every size events or every interval.
func NewBatchedEventStore(conn *sql.DB, size int, interval time.Duration) *BatchedEventStore {
	return &BatchedEventStore{
		EventStore: NewEventStore(conn),
		bw:         NewBatchWriter(conn, size, interval),
	}
}

// OnError registers a callback for commit failures. Each error is a
// *CommitError carrying the number of events lost. Call it before the first Append.
func (s *BatchedEventStore) OnError(fn func(error)) {
	s.bw.OnError = fn
}

// Append buffers e. It fails only when ctx is done or the store is closed;
// commit failures are reported through OnError.
func (s *BatchedEventStore) Append(ctx context.Context, e telemetry.Event) error {
	err := s.bw.SubmitContext(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return InsertEvent(ctx, tx, e)
	})
	if err != nil {
		return fmt.Errorf("buffer interaction: %w", err)
	}
	return nil
}

func (s *BatchedEventStore) Query(ctx context.Context, q telemetry.Query) ([]telemetry.Event, error) {
	if err := s.bw.FlushContext(ctx); err != nil {
		return nil, fmt.Errorf("flush interactions: %w", err)
	}
	return s.EventStore.Query(ctx, q)
}

// Close commits the remaining events.
func (s *BatchedEventStore) Close() error {
	return s.bw.Close()
}
