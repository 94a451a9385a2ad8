package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/japaniel/glossary/internal/config"
	"github.com/japaniel/glossary/pkg/analytics"
	"github.com/japaniel/glossary/pkg/annotate"
	"github.com/japaniel/glossary/pkg/db"
	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/index"
	"github.com/japaniel/glossary/pkg/matcher"
	"github.com/japaniel/glossary/pkg/pgstore"
	"github.com/japaniel/glossary/pkg/search"
	"github.com/japaniel/glossary/pkg/segment"
	"github.com/japaniel/glossary/pkg/telemetry"
)

// termStore is a persistent term table.
type termStore interface {
	index.Source
	ImportTerms(ctx context.Context, terms []dictionary.Term) (int, error)
}

type pgTerms struct {
	*pgstore.Store
}

func (p pgTerms) ImportTerms(ctx context.Context, terms []dictionary.Term) (int, error) {
	return p.UpsertTerms(ctx, terms)
}

// backend is the storage selected by GLOSSARY_STORE.
type backend struct {
	events telemetry.Store
	terms  termStore // nil for the memory store
	sqlite *sql.DB   // set only for the sqlite store
	// batched buffers sqlite appends; its commit failures count as dropped events.
	batched *db.BatchedEventStore
	ping    func(ctx context.Context) error
	close   func()
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return &backend{
			events: telemetry.NewMemoryStore(),
			ping:   func(context.Context) error { return nil },
			close:  func() {},
		}, nil

	case config.StorePostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "database connected", "store", cfg.Store)
		return &backend{
			events: store,
			terms:  pgTerms{store},
			ping:   store.Ping,
			close:  store.Close,
		}, nil

	default:
		conn, err := db.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		events := db.NewBatchedEventStore(conn, 64, 200*time.Millisecond)
		slog.InfoContext(ctx, "database connected", "store", cfg.Store, "path", cfg.SQLite.Path)
		return &backend{
			events:  events,
			terms:   db.NewTermStore(conn),
			sqlite:  conn,
			batched: events,
			ping:    conn.PingContext,
			close: func() {
				if err := events.Close(); err != nil {
					slog.Error("failed to flush glossary interactions", "error", err)
				}
				conn.Close()
			},
		}, nil
	}
}

// syncedSource writes the terms file through to the term store on every
// load and serves what the store holds. Without a terms file the store is
// served as it is. Terms removed from the file stay stored until deleted.
type syncedSource struct {
	file  index.FileSource
	store termStore
}

func (s syncedSource) ListTerms(ctx context.Context) ([]dictionary.Term, error) {
	terms, err := s.file.ListTerms(ctx)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if _, err := s.store.ImportTerms(ctx, terms); err != nil {
			return nil, fmt.Errorf("import %s: %w", s.file.Path, err)
		}
	}
	return s.store.ListTerms(ctx)
}

// app holds the long-lived components shared by the server and the CLI modes.
type app struct {
	cfg      config.Config
	backend  *backend
	holder   *index.Holder
	source   index.Source
	watcher  *index.Watcher
	searcher *search.Searcher
	recorder *telemetry.Recorder
	agg      *analytics.Aggregator
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	policy, err := dictionary.ParseCollisionPolicy(cfg.Terms.CollisionPolicy)
	if err != nil {
		return nil, err
	}
	weights, err := trendingWeights(cfg.Trending.Weights)
	if err != nil {
		return nil, err
	}

	var mopts matcher.Options
	if cfg.Annotate.SegmentCJK {
		seg, err := segment.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create segmenter: %w", err)
		}
		mopts.Boundary = seg
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		backend:  b,
		holder:   index.NewHolder(dictionary.BuildOptions{Collision: policy}, mopts),
		searcher: search.NewSearcher(),
	}
	file := index.FileSource{Path: cfg.Terms.Path}
	if b.terms != nil {
		a.source = syncedSource{file: file, store: b.terms}
	} else {
		a.source = file
	}

	snap, err := a.holder.Refresh(ctx, a.source)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load glossary terms", "error", err)
	}
	a.rebuildSearch(snap)

	if cfg.Terms.Watch {
		w, err := index.NewWatcher(a.holder, a.source, cfg.Terms.Path,
			index.WithOnReload(func(s *index.Snapshot, err error) {
				if err == nil {
					a.rebuildSearch(s)
				}
			}))
		if err != nil {
			slog.WarnContext(ctx, "terms file will not be watched", "path", cfg.Terms.Path, "error", err)
		} else {
			a.watcher = w
		}
	}

	a.recorder = telemetry.NewRecorder(b.events, a.holder, telemetry.Config{
		QueueSize:    cfg.Recorder.QueueSize,
		Workers:      cfg.Recorder.Workers,
		WriteTimeout: cfg.Recorder.WriteTimeout,
	})
	if b.batched != nil {
		b.batched.OnError(a.reportLostEvents)
	}
	a.agg = analytics.NewAggregator(b.events, analytics.Options{
		Weights:  weights,
		Fallback: cfg.Trending.Fallback,
		Location: cfg.ReportLocation,
		Terms:    a.holder,
	})
	return a, nil
}

func (a *app) reportLostEvents(err error) {
	slog.Error("failed to commit glossary interactions", "error", err)
	var ce *db.CommitError
	if errors.As(err, &ce) {
		a.recorder.ReportDropped(ce.Writes)
	}
}

func (a *app) rebuildSearch(snap *index.Snapshot) {
	if err := a.searcher.Rebuild(snap.Dictionary().Terms()); err != nil {
		slog.Error("failed to rebuild search index", "version", snap.Version(), "error", err)
	}
}

// annotateOptions are the defaults applied to every annotation pass.
func (a *app) annotateOptions() annotate.Options {
	opts := annotate.DefaultOptions()
	if a.cfg.Annotate.MaxTermsPerBlock > 0 {
		opts.MaxDistinctTermsPerBlock = a.cfg.Annotate.MaxTermsPerBlock
	}
	return opts
}

// health fails until terms are loaded or while the store is unreachable.
func (a *app) health(ctx context.Context) error {
	if a.holder.Version() == 0 {
		return errors.New("glossary terms not loaded")
	}
	return a.backend.ping(ctx)
}

// Close stops the watcher, drains queued interactions and releases the store.
func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			slog.Warn("failed to stop terms watcher", "error", err)
		}
	}
	a.recorder.Close()
	a.searcher.Close()
	a.backend.close()
}

// trendingWeights converts configured weights keyed by interaction type name.
func trendingWeights(raw map[string]float64) (analytics.Weights, error) {
	if len(raw) == 0 {
		return analytics.DefaultWeights(), nil
	}
	out := make(analytics.Weights, len(raw))
	for name, w := range raw {
		typ, err := telemetry.ParseInteractionType(name)
		if err != nil {
			return nil, fmt.Errorf("trending weight: %w", err)
		}
		out[typ] = w
	}
	return out, nil
}
