package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/personae/internal/metrics"
)

// Handle is an open generation. Searches may run concurrently; writes are serialized
// by a single-writer lock.
type Handle struct {
	idx        bleve.Index
	schema     Schema
	generation string
	path       string
	opts       Options
	logger     *zap.Logger

	writeSem chan struct{}
	terms    *termCache

	mu     sync.RWMutex
	closed bool
}

func newHandle(idx bleve.Index, schema Schema, generation, path string, opts Options) *Handle {
	return &Handle{
		idx:        idx,
		schema:     schema,
		generation: generation,
		path:       path,
		opts:       opts,
		logger:     opts.Logger,
		writeSem:   make(chan struct{}, 1),
		terms:      newTermCache(),
	}
}

// Schema returns the schema the generation was created with.
func (h *Handle) Schema() Schema { return h.schema }

// Generation returns the generation id.
func (h *Handle) Generation() string { return h.generation }

// Path returns the generation directory.
func (h *Handle) Path() string { return h.path }

// AddDocument inserts doc and commits.
func (h *Handle) AddDocument(ctx context.Context, doc Document) error {
	return h.single(ctx, "add", doc.Key(), func(w *Writer) error { return w.Add(doc) })
}

// UpdateDocument replaces the document sharing doc's id, inserting it when absent, and commits.
func (h *Handle) UpdateDocument(ctx context.Context, doc Document) error {
	return h.single(ctx, "update", doc.Key(), func(w *Writer) error { return w.Update(doc) })
}

// DeleteByTerm removes every document whose field holds value and commits.
// It returns the number of documents removed.
func (h *Handle) DeleteByTerm(ctx context.Context, field, value string) (int, error) {
	if _, ok := h.schema.Field(field); !ok {
		return 0, &IndexWriteError{Op: "delete", DocID: value, Err: fmt.Errorf("unknown field %q", field)}
	}
	var removed int
	err := h.single(ctx, "delete", value, func(w *Writer) error {
		ids, err := h.matchingIDs(field, value)
		if err != nil {
			return err
		}
		for _, id := range ids {
			w.Delete(id)
		}
		removed = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// matchingIDs returns the ids of documents whose field equals value as a single term.
func (h *Handle) matchingIDs(field, value string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrIndexClosed
	}
	if field == h.schema.IDField() {
		doc, err := h.idx.Document(value)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, nil
		}
		return []string{value}, nil
	}
	total, err := h.idx.DocCount()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	req := bleve.NewSearchRequestOptions(q, int(total), 0, false)
	res, err := h.idx.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (h *Handle) single(ctx context.Context, op, docID string, fn func(*Writer) error) error {
	w, err := h.Writer(ctx)
	if err != nil {
		metrics.IndexWrites.WithLabelValues(op, metrics.ResultError).Inc()
		return withOp(err, op, docID)
	}
	if err := fn(w); err != nil {
		w.Cancel()
		metrics.IndexWrites.WithLabelValues(op, metrics.ResultError).Inc()
		return withOp(err, op, docID)
	}
	err = w.Commit()
	metrics.IndexWrites.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		return withOp(err, op, docID)
	}
	return nil
}

// withOp reports err as a failure of op on docID. ErrIndexClosed stays reachable through errors.Is.
func withOp(err error, op, docID string) error {
	var we *IndexWriteError
	if errors.As(err, &we) {
		err = we.Err
	}
	return &IndexWriteError{Op: op, DocID: docID, Err: err}
}

// Writer opens a multi-operation session holding the writer lock until Commit or Cancel.
// The wait is bounded by the configured write lock timeout and by ctx.
func (h *Handle) Writer(ctx context.Context) (*Writer, error) {
	if h.isClosed() {
		return nil, ErrIndexClosed
	}
	if err := h.acquire(ctx); err != nil {
		return nil, &IndexWriteError{Op: "lock", Err: err}
	}
	if h.isClosed() {
		h.release()
		return nil, ErrIndexClosed
	}
	return &Writer{h: h, batch: h.idx.NewBatch()}, nil
}

func (h *Handle) acquire(ctx context.Context) error {
	timer := time.NewTimer(h.opts.WriteLockTimeout)
	defer timer.Stop()
	select {
	case h.writeSem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrWriterLockTimeout
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWriterLockTimeout, ctx.Err())
	}
}

func (h *Handle) release() {
	<-h.writeSem
}

// DocCount returns the number of committed documents.
func (h *Handle) DocCount() (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrIndexClosed
	}
	n, err := h.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close releases the generation. Closing twice is a no-op; later operations fail with ErrIndexClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.terms.invalidate()
	if err := h.idx.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	return nil
}

func (h *Handle) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}
