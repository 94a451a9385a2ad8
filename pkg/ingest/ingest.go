// Package ingest scans content documents for glossary terms and records which
// documents mention which terms. Runs are resumable per source.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/japaniel/glossary/pkg/annotate"
	"github.com/japaniel/glossary/pkg/db"
	"github.com/japaniel/glossary/pkg/worker"
)

// Document is one piece of content in a source.
type Document struct {
	// Key identifies the document within its source, e.g. a slug. The
	// document's position is used when empty.
	Key   string
	Title string
	Root  annotate.Node
}

// Pool abstracts the worker pool so tests can inject failing implementations.
type Pool interface {
	Start(ctx context.Context)
	SubmitCtx(ctx context.Context, job worker.Job) error
	Close()
}

// Ingester records term mentions of documents into the database.
type Ingester struct {
	DB        *sql.DB
	Index     annotate.Index
	BatchSize int
	Workers   int
	// OnProgress is called with the number of documents handed to the writer so far.
	OnProgress func(current, total int)

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) Pool
}

// NewIngester creates an Ingester matching against idx.
func NewIngester(conn *sql.DB, idx annotate.Index) *Ingester {
	return &Ingester{
		DB:        conn,
		Index:     idx,
		BatchSize: 50,
		Workers:   4,
	}
}

type scannedDocument struct {
	index int
	key   string
	terms []TermCount
}

// Ingest scans docs and links every mentioned term to the document. It resumes
// after the last document recorded for sourceID and returns the number of
// mentions written.
func (ig *Ingester) Ingest(ctx context.Context, sourceID int64, docs []Document) (int, error) {
	if ig.Index == nil {
		return 0, errors.New("ingest: no match index")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	lastProcessed, err := db.GetSourceProgress(ctx, ig.DB, sourceID)
	if err != nil {
		return 0, fmt.Errorf("read progress of source %d: %w", sourceID, err)
	}
	start := lastProcessed + 1
	if start >= len(docs) {
		return 0, nil
	}
	if start > 0 {
		slog.InfoContext(ctx, "resuming ingest", "source_id", sourceID, "skipped", start)
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	var pool Pool
	if ig.PoolFactory != nil {
		pool = ig.PoolFactory(workers, workers*2)
	} else {
		pool = worker.NewPool(workers, workers*2)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan scannedDocument, workers*2)
	bw := db.NewBatchWriter(ig.DB, ig.BatchSize, 100*time.Millisecond)
	var linked atomic.Int64

	consumerDone := make(chan error, 1)
	go func() {
		err := ig.consume(sourceID, start, len(docs), results, bw, &linked)
		if err != nil {
			// Unblock producers waiting on results.
			cancel()
		}
		consumerDone <- err
	}()

	pool.Start(ctx)

	var submitErr error
	for i := start; i < len(docs); i++ {
		idx, doc := i, docs[i]
		job := func(ctx context.Context) error {
			res := scannedDocument{index: idx, key: doc.Key, terms: CountMentions(ig.Index, doc.Root)}
			if res.key == "" {
				res.key = strconv.Itoa(idx)
			}
			select {
			case results <- res:
			case <-ctx.Done():
			}
			return nil
		}
		if err := pool.SubmitCtx(ctx, job); err != nil {
			submitErr = err
			break
		}
	}

	pool.Close()
	close(results)
	consumerErr := <-consumerDone
	closeErr := bw.Close()

	n := int(linked.Load())
	switch {
	case submitErr != nil:
		return n, submitErr
	case consumerErr != nil:
		return n, consumerErr
	case closeErr != nil:
		return n, closeErr
	}
	return n, nil
}

// consume writes results in document order so that the progress checkpoint
// never skips a document.
func (ig *Ingester) consume(sourceID int64, next, total int, results <-chan scannedDocument, bw *db.BatchWriter, linked *atomic.Int64) error {
	buffer := make(map[int]scannedDocument)
	for res := range results {
		buffer[res.index] = res
		for {
			item, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)

			if err := bw.Submit(writeDocument(sourceID, item, linked)); err != nil {
				return err
			}
			next++
			if ig.OnProgress != nil {
				ig.OnProgress(next, total)
			}
		}
	}
	return nil
}

func writeDocument(sourceID int64, doc scannedDocument, linked *atomic.Int64) db.WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, tc := range doc.terms {
			if err := db.LinkTermToSource(ctx, tx, tc.TermID, sourceID, doc.key, tc.Snippet, tc.Count); err != nil {
				return fmt.Errorf("failed to link term %s: %w", tc.TermID, err)
			}
			linked.Add(int64(tc.Count))
		}
		if err := db.UpdateSourceProgress(ctx, tx, sourceID, doc.index); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
		return nil
	}
}
