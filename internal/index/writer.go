package index

import (
	"errors"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/hyperjump/personae/internal/metrics"
)

// Writer is an exclusive write session. Buffered operations become visible to
// searches only on Commit; Cancel discards them. A Writer is not safe for concurrent use.
type Writer struct {
	h     *Handle
	batch *bleve.Batch
	done  bool
}

// Add buffers doc for insertion. A document with the same id is replaced.
func (w *Writer) Add(doc Document) error {
	return w.index("add", doc)
}

// Update buffers the replacement of the document sharing doc's id.
func (w *Writer) Update(doc Document) error {
	return w.index("update", doc)
}

func (w *Writer) index(op string, doc Document) error {
	if w.done {
		return &IndexWriteError{Op: op, DocID: doc.Key(), Err: ErrWriterDone}
	}
	if doc.ID <= 0 {
		return &IndexWriteError{Op: op, DocID: doc.Key(), Err: errors.New("document id must be positive")}
	}
	if err := w.batch.Index(doc.Key(), doc.fields(w.h.schema)); err != nil {
		return &IndexWriteError{Op: op, DocID: doc.Key(), Err: err}
	}
	return nil
}

// Delete buffers the removal of the document with id. Unknown ids are ignored on commit.
func (w *Writer) Delete(id string) {
	if w.done {
		return
	}
	w.batch.Delete(id)
}

// Len returns the number of buffered operations.
func (w *Writer) Len() int {
	return w.batch.Size()
}

// Commit applies the buffered operations atomically and releases the writer lock.
func (w *Writer) Commit() error {
	if w.done {
		return &IndexWriteError{Op: "commit", Err: ErrWriterDone}
	}
	w.done = true
	defer w.h.release()

	w.h.mu.RLock()
	defer w.h.mu.RUnlock()
	if w.h.closed {
		return ErrIndexClosed
	}
	start := time.Now()
	err := w.h.idx.Batch(w.batch)
	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	w.h.terms.invalidate()
	if err != nil {
		return &IndexWriteError{Op: "commit", Err: err}
	}
	return nil
}

// Cancel discards the buffered operations and releases the writer lock. Safe to call after Commit.
func (w *Writer) Cancel() {
	if w.done {
		return
	}
	w.done = true
	w.batch.Reset()
	w.h.release()
}
