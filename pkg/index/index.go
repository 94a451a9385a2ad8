// Package index holds the live match index: a dictionary and the matcher compiled
// from it, swapped as one unit whenever the term list changes.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/matcher"
)

// Snapshot is an immutable dictionary plus its compiled matcher.
type Snapshot struct {
	dict    *dictionary.Dictionary
	match   *matcher.Matcher
	version uint64
	builtAt time.Time
}

func (s *Snapshot) Dictionary() *dictionary.Dictionary { return s.dict }
func (s *Snapshot) Matcher() *matcher.Matcher          { return s.match }
func (s *Snapshot) Version() uint64                    { return s.version }
func (s *Snapshot) BuiltAt() time.Time                 { return s.builtAt }

// Build creates a snapshot from raw terms.
func Build(terms []dictionary.Term, bopts dictionary.BuildOptions, mopts matcher.Options) *Snapshot {
	d := dictionary.Build(terms, bopts)
	return &Snapshot{
		dict:    d,
		match:   matcher.Compile(d.Aliases(), mopts),
		builtAt: time.Now(),
	}
}

// Source supplies the current term list.
type Source interface {
	ListTerms(ctx context.Context) ([]dictionary.Term, error)
}

// Holder publishes the current snapshot. Readers never block; a rebuild
// replaces the whole snapshot at once.
type Holder struct {
	build   dictionary.BuildOptions
	match   matcher.Options
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewHolder returns a holder serving an empty snapshot until the first rebuild.
func NewHolder(bopts dictionary.BuildOptions, mopts matcher.Options) *Holder {
	h := &Holder{build: bopts, match: mopts}
	h.current.Store(Build(nil, bopts, mopts))
	return h
}

// Load returns the live snapshot.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Version returns the version of the live snapshot. Zero means nothing has been loaded yet.
func (h *Holder) Version() uint64 {
	return h.Load().version
}

// Rebuild builds a snapshot from terms and makes it live.
func (h *Holder) Rebuild(terms []dictionary.Term) *Snapshot {
	s := Build(terms, h.build, h.match)
	s.version = h.version.Add(1)
	h.current.Store(s)
	for _, w := range s.dict.Warnings() {
		slog.Warn("glossary term skipped", "warning", w.String())
	}
	slog.Info("match index rebuilt", "version", s.version, "terms", s.dict.Len(), "aliases", s.match.Len())
	return s
}

// Refresh rebuilds from src. On error the previous snapshot stays live.
func (h *Holder) Refresh(ctx context.Context, src Source) (*Snapshot, error) {
	terms, err := src.ListTerms(ctx)
	if err != nil {
		return h.Load(), fmt.Errorf("failed to list terms: %w", err)
	}
	return h.Rebuild(terms), nil
}

// Lookup resolves name against the live dictionary.
func (h *Holder) Lookup(name string) (dictionary.Term, bool) {
	return h.Load().Dictionary().Lookup(name)
}

// ByID returns the live term with the given id.
func (h *Holder) ByID(id string) (dictionary.Term, bool) {
	return h.Load().Dictionary().ByID(id)
}
