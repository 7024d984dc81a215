package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/personae/internal/metrics"
)

// RecordIterator yields documents in the natural order of the record source.
// It stops and returns the first error returned by yield.
type RecordIterator func(yield func(Document) error) error

// Populate adds every document produced by next in one writer session and commits once.
// On any failure nothing is committed and the error is returned.
func Populate(ctx context.Context, h *Handle, next RecordIterator) (int, error) {
	w, err := h.Writer(ctx)
	if err != nil {
		return 0, err
	}
	err = next(func(doc Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return w.Add(doc)
	})
	if err != nil {
		w.Cancel()
		metrics.IndexWrites.WithLabelValues("populate", metrics.ResultError).Inc()
		return 0, fmt.Errorf("populate index: %w", err)
	}
	n := w.Len()
	err = w.Commit()
	metrics.IndexWrites.WithLabelValues("populate", metrics.Result(err)).Inc()
	if err != nil {
		return 0, fmt.Errorf("populate index: %w", err)
	}
	h.logger.Debug("index populated", zap.String("generation", h.generation), zap.Int("documents", n))
	return n, nil
}

// SliceIterator yields docs in order.
func SliceIterator(docs []Document) RecordIterator {
	return func(yield func(Document) error) error {
		for _, d := range docs {
			if err := yield(d); err != nil {
				return err
			}
		}
		return nil
	}
}
