// Package storage defines the persistence interface for person records and the
// after-commit observers that keep secondary indexes in step with it.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/personae/internal/models"
)

// ErrNotFound is returned when a person does not exist.
var ErrNotFound = errors.New("person not found")

// IDEndpPrefix prefixes forged public identifiers ("person_12").
const IDEndpPrefix = "person"

// Observer is notified after a person mutation has committed. Implementations must
// not assume they can veto or roll back the mutation.
type Observer interface {
	AfterInsert(ctx context.Context, p *models.Person)
	AfterUpdate(ctx context.Context, p *models.Person)
	// AfterDelete receives the row as it was before deletion.
	AfterDelete(ctx context.Context, p *models.Person)
}

// PersonStore defines person persistence operations.
type PersonStore interface {
	CreatePerson(ctx context.Context, p *models.Person) error
	GetPerson(ctx context.Context, id int64) (*models.Person, error)
	UpdatePerson(ctx context.Context, p *models.Person) error
	DeletePerson(ctx context.Context, id int64) error
	ListPersons(ctx context.Context, offset, limit int) ([]*models.Person, error)
	// ForEachPerson calls fn for every person in ascending id order, stopping at the first error.
	ForEachPerson(ctx context.Context, fn func(*models.Person) error) error
	CountPersons(ctx context.Context) (int64, error)

	// Subscribe registers obs. Observers run in registration order.
	Subscribe(obs Observer)

	Close() error
}
