package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/metrics"
	"github.com/hyperjump/personae/internal/models"
	"github.com/hyperjump/personae/internal/storage"
	"github.com/hyperjump/personae/pkg/utils"
)

var _ storage.Observer = (*Synchronizer)(nil)

// Synchronizer mirrors committed person mutations into the index. Index failures never
// reach the caller of the mutation: they are logged, counted and dropped, leaving the
// index stale until the next repopulation. Errors of any other kind still panic.
type Synchronizer struct {
	mu     sync.RWMutex
	handle *index.Handle

	logger   *zap.Logger
	failures atomic.Int64
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithSyncLogger sets the logger for suppressed failures.
func WithSyncLogger(l *zap.Logger) SyncOption {
	return func(s *Synchronizer) { s.logger = utils.OrNop(l) }
}

// NewSynchronizer creates a synchronizer writing to h. h may be nil until SetHandle.
func NewSynchronizer(h *index.Handle, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{handle: h, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetHandle switches the target handle, e.g. after a rebuild.
func (s *Synchronizer) SetHandle(h *index.Handle) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

// Failures returns the number of suppressed index failures.
func (s *Synchronizer) Failures() int64 {
	return s.failures.Load()
}

func (s *Synchronizer) AfterInsert(ctx context.Context, p *models.Person) {
	s.guard("insert", p.ID, func(h *index.Handle) error {
		return h.AddDocument(ctx, DocumentFromPerson(p))
	})
}

func (s *Synchronizer) AfterUpdate(ctx context.Context, p *models.Person) {
	s.guard("update", p.ID, func(h *index.Handle) error {
		return h.UpdateDocument(ctx, DocumentFromPerson(p))
	})
}

func (s *Synchronizer) AfterDelete(ctx context.Context, p *models.Person) {
	s.guard("delete", p.ID, func(h *index.Handle) error {
		_, err := h.DeleteByTerm(ctx, index.FieldNameID, strconv.FormatInt(p.ID, 10))
		return err
	})
}

func (s *Synchronizer) guard(op string, id int64, fn func(*index.Handle) error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if err, ok := r.(error); ok && suppressible(err) {
			s.suppress(op, id, err)
			return
		}
		panic(r)
	}()

	s.mu.RLock()
	h := s.handle
	s.mu.RUnlock()
	if h == nil {
		s.suppress(op, id, &index.NotFoundError{What: "open index"})
		return
	}
	if err := fn(h); err != nil {
		if !suppressible(err) {
			panic(fmt.Errorf("index sync %s %d: %w", op, id, err))
		}
		s.suppress(op, id, err)
	}
}

func (s *Synchronizer) suppress(op string, id int64, err error) {
	s.failures.Add(1)
	metrics.SyncFailures.WithLabelValues(op).Inc()
	s.logger.Warn("index sync failed; run index-populate to repair",
		zap.String("op", op),
		zap.Int64("person_id", id),
		zap.Bool("retryable", index.IsRetryable(err)),
		zap.Error(err),
	)
}

func suppressible(err error) bool {
	return index.IsWriteError(err) ||
		index.IsProvisioning(err) ||
		index.IsNotFound(err) ||
		errors.Is(err, index.ErrIndexClosed)
}
