// Package telemetry records glossary interactions: views, searches, copies and
// quiz attempts. Recording never blocks or fails the caller.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// InteractionType is the kind of user interaction with a term.
type InteractionType string

const (
	InteractionView        InteractionType = "view"
	InteractionSearch      InteractionType = "search"
	InteractionCopy        InteractionType = "copy"
	InteractionYouTube     InteractionType = "youtube"
	InteractionBookmark    InteractionType = "bookmark"
	InteractionQuizAttempt InteractionType = "quiz_attempt"
)

// InteractionTypes lists every known type.
var InteractionTypes = []InteractionType{
	InteractionView, InteractionSearch, InteractionCopy,
	InteractionYouTube, InteractionBookmark, InteractionQuizAttempt,
}

func (t InteractionType) Valid() bool {
	for _, k := range InteractionTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ParseInteractionType validates s, ignoring case and surrounding space.
func ParseInteractionType(s string) (InteractionType, error) {
	t := InteractionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid interaction type %q", s)
	}
	return t, nil
}

// Metadata keys written by the recorder.
const (
	MetaSearchedTerm = "searched_term"
	MetaFound        = "found"
)

// Event is one append-only interaction record.
type Event struct {
	ID        int64           `json:"id"`
	TermID    *string         `json:"term_id"`
	Term      string          `json:"term,omitempty"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	Type      InteractionType `json:"interaction_type"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Timestamp time.Time       `json:"created_at"`

	// Quiz attempt fields; zero for other types.
	Correct        bool   `json:"correct,omitempty"`
	ResponseTimeMs int    `json:"response_time_ms,omitempty"`
	Difficulty     string `json:"difficulty,omitempty"`
}

// SearchedTerm returns the raw search text of a search event.
func (e Event) SearchedTerm() string {
	s, _ := e.Metadata[MetaSearchedTerm].(string)
	return s
}

// Found reports the found flag of a search event. ok is false when the flag is absent.
func (e Event) Found() (found, ok bool) {
	found, ok = e.Metadata[MetaFound].(bool)
	return found, ok
}

// QuizAttempt is a single answered quiz question.
type QuizAttempt struct {
	TermID         string
	UserID         string
	SessionID      string
	Correct        bool
	ResponseTimeMs int
	Difficulty     string
}

// Query selects events. Zero fields do not filter.
type Query struct {
	Since  time.Time
	Until  time.Time // exclusive
	Types  []InteractionType
	UserID string
	TermID string
	// FoundOnly filters search events on their found flag.
	FoundOnly *bool
	Limit     int
}

// Match reports whether e satisfies q. Stores that cannot push a filter down use it.
func (q Query) Match(e Event) bool {
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !e.Timestamp.Before(q.Until) {
		return false
	}
	if len(q.Types) > 0 {
		ok := false
		for _, t := range q.Types {
			if e.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.TermID != "" && (e.TermID == nil || *e.TermID != q.TermID) {
		return false
	}
	if q.FoundOnly != nil {
		found, ok := e.Found()
		if !ok || found != *q.FoundOnly {
			return false
		}
	}
	return true
}

// Store is an append-only interaction log with windowed reads. Query returns
// events oldest first.
type Store interface {
	Append(ctx context.Context, e Event) error
	Query(ctx context.Context, q Query) ([]Event, error)
}
