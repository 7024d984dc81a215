// Package search resolves person searches: it runs the index query and loads the
// matching persons from storage.
package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperjump/personae/internal/config"
	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/models"
	"github.com/hyperjump/personae/internal/storage"
)

// Searcher runs index queries. *index.Handle implements it.
type Searcher interface {
	Search(ctx context.Context, q index.Query) ([]index.Hit, error)
}

// Engine answers person searches.
type Engine struct {
	index   Searcher
	persons storage.PersonStore
	config  *config.SearchConfig
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(idx Searcher, persons storage.PersonStore, cfg *config.SearchConfig) *Engine {
	return &Engine{index: idx, persons: persons, config: cfg}
}

// Search runs query and returns the matching persons in hit order. Hits whose person
// has been deleted since indexing are skipped. Invalid input yields an *index.QueryError.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	q, err := ProcessQuery(query, e.config)
	if err != nil {
		return nil, err
	}

	hits, err := e.index.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	response := &models.SearchResponse{
		Query:     query.Query,
		TypeQuery: string(q.Type),
		Hits:      make([]*models.SearchHit, 0, len(hits)),
		Results:   make([]*models.Person, 0, len(hits)),
	}
	for _, hit := range hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed index id %q: %w", hit.ID, err)
		}
		response.Hits = append(response.Hits, &models.SearchHit{ID: id, IDEndp: hit.IDEndp})

		p, err := e.persons.GetPerson(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load person %d: %w", id, err)
		}
		response.Results = append(response.Results, p)
	}
	response.Total = len(response.Results)
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}
