package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// WriteFunc is a callback that performs database writes inside a transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// BatchWriter buffers write operations and flushes them in batches inside a
// transaction. A failing write rolls back its whole batch.
type BatchWriter struct {
	mu          sync.Mutex
	buf         []WriteFunc
	cap         int
	flushTicker *time.Ticker
	closed      bool
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	commitCh chan []WriteFunc
	db       *sql.DB
	// OnError receives commit failures and dropped batches, as *CommitError.
	// Set it before the first Submit.
	OnError func(error)

	// pending counts writes submitted but not yet committed or failed.
	// drained is closed whenever pending is zero.
	pendingMu sync.Mutex
	pending   int
	drained   chan struct{}

	// lastErr stores the first asynchronous error seen by the writer. Protected by errMu.
	errMu   sync.Mutex
	lastErr error
}

// NewBatchWriter starts a writer that flushes every bufferSize writes and, when
// flushInterval > 0, at least that often.
func NewBatchWriter(db *sql.DB, bufferSize int, flushInterval time.Duration) *BatchWriter {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BatchWriter{
		buf:         make([]WriteFunc, 0, bufferSize),
		cap:         bufferSize,
		flushTicker: nil,
		ctx:         ctx,
		cancel:      cancel,
		commitCh:    make(chan []WriteFunc, 2),
		db:          db,
		drained:     make(chan struct{}),
	}
	close(bw.drained)

	bw.wg.Add(1)
	go bw.committer()

	if flushInterval > 0 {
		bw.flushTicker = time.NewTicker(flushInterval)
		bw.wg.Add(1)
		go bw.loop()
	}
	return bw
}

// Submit enqueues a write function.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	return bw.SubmitContext(context.Background(), w)
}

// SubmitContext enqueues a write function unless ctx is already done. When the
// write fills the buffer and the committer is busy, it waits for the hand-off
// at most until ctx is done; the write then stays buffered for the next flush.
func (bw *BatchWriter) SubmitContext(ctx context.Context, w WriteFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.addPending(1)
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.cap {
		_ = bw.flushLocked(ctx)
	}
	return nil
}

// flushLocked assumes bw.mu is held. Blocking on the hand-off while holding mu
// pushes backpressure onto Submit. If ctx ends first the buffer is kept.
func (bw *BatchWriter) flushLocked(ctx context.Context) error {
	if len(bw.buf) == 0 {
		return nil
	}
	batch := bw.buf

	select {
	case bw.commitCh <- batch:
	case <-bw.ctx.Done():
		bw.fail(&CommitError{Writes: len(batch), Err: errors.New("dropped during shutdown")})
		bw.addPending(-len(batch))
	case <-ctx.Done():
		return ctx.Err()
	}
	bw.buf = make([]WriteFunc, 0, bw.cap)
	return nil
}

// fail records the first asynchronous error and reports every error to OnError.
func (bw *BatchWriter) fail(err error) {
	bw.errMu.Lock()
	if bw.lastErr == nil {
		bw.lastErr = err
	}
	bw.errMu.Unlock()
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

// Flush hands the buffered writes to the committer and waits until every write
// submitted so far has been committed or has failed.
func (bw *BatchWriter) Flush() {
	_ = bw.FlushContext(context.Background())
}

// FlushContext is Flush that gives up when ctx is done. Writes are not lost
// when it returns early; they commit in the background.
func (bw *BatchWriter) FlushContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bw.mu.Lock()
	err := bw.flushLocked(ctx)
	bw.mu.Unlock()
	if err != nil {
		return err
	}

	bw.pendingMu.Lock()
	drained := bw.drained
	bw.pendingMu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (bw *BatchWriter) addPending(n int) {
	bw.pendingMu.Lock()
	defer bw.pendingMu.Unlock()
	was := bw.pending
	bw.pending += n
	switch {
	case was <= 0 && bw.pending > 0:
		bw.drained = make(chan struct{})
	case was > 0 && bw.pending <= 0:
		close(bw.drained)
	}
}

func (bw *BatchWriter) committer() {
	defer bw.wg.Done()
	for batch := range bw.commitCh {
		if err := bw.executeBatch(batch); err != nil {
			bw.fail(&CommitError{Writes: len(batch), Err: err})
		}
		bw.addPending(-len(batch))
	}
}

func (bw *BatchWriter) executeBatch(batch []WriteFunc) error {
	// Without a DB the callbacks run with a nil tx.
	if bw.db == nil {
		for _, w := range batch {
			if err := w(bw.ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}

	// Not bw.ctx: batches still commit while the writer is closing.
	ctx := context.Background()

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, w := range batch {
		if err := w(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch (%d items): %w", len(batch), err)
	}
	return nil
}

func (bw *BatchWriter) loop() {
	defer bw.wg.Done()
	for {
		select {
		case <-bw.ctx.Done():
			return
		case <-bw.flushTicker.C:
			bw.mu.Lock()
			if len(bw.buf) > 0 {
				_ = bw.flushLocked(context.Background())
			}
			bw.mu.Unlock()
		}
	}
}

// Close stops accepting submissions and waits for pending writes to complete.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrBatchWriterClosed
	}
	bw.closed = true
	if bw.flushTicker != nil {
		bw.flushTicker.Stop()
	}
	if len(bw.buf) > 0 {
		_ = bw.flushLocked(context.Background())
	}
	bw.mu.Unlock()

	bw.cancel()
	close(bw.commitCh)
	bw.wg.Wait()

	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	if bw.lastErr != nil {
		return bw.lastErr
	}
	return nil
}

// ErrBatchWriterClosed is returned by Submit and Close after Close.
var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

// CommitError reports a batch of writes that was rolled back or dropped.
type CommitError struct {
	Writes int
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("batch writer: %d writes lost: %v", e.Writes, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// BatchWriterError provides a simple typed error for batch writer operations.
type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
