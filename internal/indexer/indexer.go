// Package indexer keeps the person index in step with the record store: full rebuilds
// for provisioning and post-commit hooks for incremental sync.
package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/models"
	"github.com/hyperjump/personae/internal/storage"
	"github.com/hyperjump/personae/pkg/utils"
)

// DocumentFromPerson projects a person onto the indexed fields.
func DocumentFromPerson(p *models.Person) index.Document {
	return index.DocumentFromFields(p.ID, p.IDEndp, p.PrefLabel, p.ForenameAltLabels, p.SurnameAltLabels)
}

// Indexer provisions and repopulates the index store from the person store.
type Indexer struct {
	persons   storage.PersonStore
	storePath string
	opts      index.Options
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger for provisioning events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = utils.OrNop(l) }
}

// NewIndexer creates an indexer that reads persons and writes the store at storePath.
func NewIndexer(persons storage.PersonStore, storePath string, opts index.Options, options ...IndexerOption) *Indexer {
	idx := &Indexer{
		persons:   persons,
		storePath: storePath,
		opts:      opts,
		logger:    zap.NewNop(),
	}
	for _, o := range options {
		o(idx)
	}
	if idx.opts.Logger == nil {
		idx.opts.Logger = idx.logger
	}
	return idx
}

// Rebuild destroys and recreates the store, registers the person schema and populates
// it from every person. The returned handle is open; the caller closes it.
func (idx *Indexer) Rebuild(ctx context.Context) (*index.Handle, int, error) {
	store, err := index.CreateStore(idx.storePath)
	if err != nil {
		return nil, 0, err
	}
	return idx.populateNew(ctx, store)
}

// Repopulate refills the existing store. With fresh set, a new empty generation replaces
// the current one first; otherwise documents are upserted into the current generation
// and index entries of vanished persons are left in place.
func (idx *Indexer) Repopulate(ctx context.Context, fresh bool) (*index.Handle, int, error) {
	store, err := index.OpenStore(idx.storePath)
	if err != nil {
		return nil, 0, err
	}
	if fresh {
		return idx.populateNew(ctx, store)
	}
	h, err := store.OpenIndex(idx.opts)
	if err != nil {
		return nil, 0, err
	}
	n, err := idx.populate(ctx, h)
	if err != nil {
		h.Close()
		return nil, 0, err
	}
	return h, n, nil
}

func (idx *Indexer) populateNew(ctx context.Context, store *index.Store) (*index.Handle, int, error) {
	h, err := store.CreateIndex(index.PersonSchema(), idx.opts)
	if err != nil {
		return nil, 0, err
	}
	n, err := idx.populate(ctx, h)
	if err != nil {
		h.Close()
		return nil, 0, err
	}
	return h, n, nil
}

func (idx *Indexer) populate(ctx context.Context, h *index.Handle) (int, error) {
	start := time.Now()
	n, err := index.Populate(ctx, h, idx.Records(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to populate index: %w", err)
	}
	idx.logger.Info("index populated",
		zap.String("store", idx.storePath),
		zap.String("generation", h.Generation()),
		zap.Int("documents", n),
		zap.Duration("took", time.Since(start)),
	)
	return n, nil
}

// Records iterates every person as an index document in ascending id order.
func (idx *Indexer) Records(ctx context.Context) index.RecordIterator {
	return func(yield func(index.Document) error) error {
		return idx.persons.ForEachPerson(ctx, func(p *models.Person) error {
			return yield(DocumentFromPerson(p))
		})
	}
}
