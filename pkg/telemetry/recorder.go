package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/japaniel/glossary/internal/id"
	"github.com/japaniel/glossary/internal/logger"
	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/worker"
)

// SessionTTL is how long an anonymous session identifier stays valid.
const SessionTTL = 30 * 24 * time.Hour

const (
	DefaultQueueSize    = 1024
	DefaultWorkers      = 2
	DefaultWriteTimeout = 2 * time.Second
)

// TermResolver resolves a term name or alias to a term, ignoring case.
type TermResolver interface {
	Lookup(name string) (dictionary.Term, bool)
}

// Config tunes a Recorder. Zero values pick the defaults.
type Config struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Recorder turns interactions into events and appends them to a Store in the
// background. All methods return immediately; failures are logged and dropped.
type Recorder struct {
	store   Store
	terms   TermResolver
	pool    *worker.Pool
	timeout time.Duration
	now     func() time.Time
	dropped atomic.Uint64
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store Store, terms TermResolver, cfg Config) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := &Recorder{
		store:   store,
		terms:   terms,
		pool:    worker.NewPool(cfg.Workers, cfg.QueueSize),
		timeout: cfg.WriteTimeout,
		now:     cfg.Now,
	}
	r.pool.OnError = func(err error) {
		r.dropped.Add(1)
		slog.Warn("failed to record glossary interaction", "error", err)
	}
	r.pool.Start(context.Background())
	return r
}

// RecordInteraction records one interaction with the term called termName.
// A search for an unknown term is still recorded, with no term id and
// found=false. Any other interaction with an unknown term is ignored.
func (r *Recorder) RecordInteraction(ctx context.Context, termName string, typ InteractionType, sessionID, userID string, metadata map[string]any) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: logger.Ptr(sessionID), Component: "glossary.telemetry.recorder"})
	if !typ.Valid() {
		slog.WarnContext(ctx, "dropping interaction with invalid type", "type", string(typ), "term", termName)
		return
	}
	if typ == InteractionQuizAttempt {
		slog.WarnContext(ctx, "quiz attempts must go through RecordQuizAttempt", "term", termName)
		return
	}

	term, found := dictionary.Term{}, false
	if r.terms != nil {
		term, found = r.terms.Lookup(termName)
	}

	meta := cloneMetadata(metadata)
	if typ == InteractionSearch {
		if meta == nil {
			meta = make(map[string]any, 2)
		}
		meta[MetaSearchedTerm] = termName
		meta[MetaFound] = found
	} else if !found {
		slog.DebugContext(ctx, "ignoring interaction with unknown term", "type", string(typ), "term", termName)
		return
	}

	e := Event{
		Term:      strings.TrimSpace(termName),
		SessionID: sessionID,
		UserID:    userID,
		Type:      typ,
		Metadata:  meta,
	}
	if found {
		e.TermID = &term.ID
	}
	r.enqueue(ctx, e)
}

// RecordQuizAttempt records an answered quiz question.
func (r *Recorder) RecordQuizAttempt(ctx context.Context, a QuizAttempt) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(a.SessionID),
		UserID:    logger.Ptr(a.UserID),
		TermID:    logger.Ptr(a.TermID),
		Component: "glossary.telemetry.recorder",
	})
	if a.UserID == "" || a.TermID == "" {
		slog.WarnContext(ctx, "dropping quiz attempt without user or term")
		return
	}
	if a.ResponseTimeMs < 0 {
		a.ResponseTimeMs = 0
	}
	termID := a.TermID
	r.enqueue(ctx, Event{
		TermID:         &termID,
		SessionID:      a.SessionID,
		UserID:         a.UserID,
		Type:           InteractionQuizAttempt,
		Correct:        a.Correct,
		ResponseTimeMs: a.ResponseTimeMs,
		Difficulty:     a.Difficulty,
	})
}

func (r *Recorder) enqueue(ctx context.Context, e Event) {
	e.ID = id.New()
	e.Timestamp = r.now().UTC()

	// The write outlives the request that triggered it.
	writeCtx := context.WithoutCancel(ctx)
	err := r.pool.TrySubmit(func(context.Context) error {
		ctx, cancel := context.WithTimeout(writeCtx, r.timeout)
		defer cancel()
		if err := r.store.Append(ctx, e); err != nil {
			slog.ErrorContext(ctx, "failed to append interaction", "type", string(e.Type), "error", err)
			r.dropped.Add(1)
		}
		return nil
	})
	if err != nil {
		r.dropped.Add(1)
		if errors.Is(err, worker.ErrQueueFull) {
			slog.WarnContext(ctx, "interaction queue full, dropping event", "type", string(e.Type))
			return
		}
		slog.WarnContext(ctx, "recorder closed, dropping event", "type", string(e.Type))
	}
}

// Dropped returns how many events were lost to a full queue, a closed recorder or a store error.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// ReportDropped counts n events that a buffering store accepted and later lost.
func (r *Recorder) ReportDropped(n int) {
	if n > 0 {
		r.dropped.Add(uint64(n))
	}
}

// Close stops accepting events and waits until queued events are written.
func (r *Recorder) Close() {
	r.pool.Close()
}

// EnsureSession returns sessionID when it is a session identifier this service
// could have issued (a UUID), otherwise a new one. The boolean reports whether a
// new identifier was issued.
func EnsureSession(sessionID string) (string, bool) {
	if s := strings.TrimSpace(sessionID); id.ValidSession(s) {
		return s, false
	}
	return id.NewSession(), true
}
