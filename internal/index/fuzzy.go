package index

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Edit distances of the fuzzy search types.
const (
	FuzzyDistance     = 2
	VeryFuzzyDistance = 4
)

// termCache holds the committed term dictionary of each field. It is dropped on every
// commit so expansions never miss committed terms.
type termCache struct {
	mu      sync.RWMutex
	version uint64
	fields  map[string][]dictTerm
}

type dictTerm struct {
	text  string
	runes []rune
}

func newTermCache() *termCache {
	return &termCache{fields: make(map[string][]dictTerm)}
}

func (c *termCache) invalidate() {
	c.mu.Lock()
	c.version++
	c.fields = make(map[string][]dictTerm)
	c.mu.Unlock()
}

// dictionary returns the cached terms of field, loading them with load on a miss.
// A load that raced with an invalidation is returned but not cached.
func (c *termCache) dictionary(field string, load func(string) ([]dictTerm, error)) ([]dictTerm, error) {
	c.mu.RLock()
	terms, ok := c.fields[field]
	version := c.version
	c.mu.RUnlock()
	if ok {
		return terms, nil
	}

	terms, err := load(field)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.version == version {
		c.fields[field] = terms
	}
	c.mu.Unlock()
	return terms, nil
}

// loadDictionary reads every committed term of field. Caller holds h.mu.
func (h *Handle) loadDictionary(field string) ([]dictTerm, error) {
	dict, err := h.idx.FieldDict(field)
	if err != nil {
		return nil, fmt.Errorf("failed to read term dictionary of %s: %w", field, err)
	}
	defer dict.Close()

	var terms []dictTerm
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read term dictionary of %s: %w", field, err)
		}
		if entry == nil {
			break
		}
		terms = append(terms, dictTerm{text: entry.Term, runes: []rune(entry.Term)})
	}
	return terms, nil
}

// expand returns the committed terms of field within maxDist edits of term,
// sharing its first prefixLen runes.
func (h *Handle) expand(field, term string, maxDist, prefixLen int) ([]string, error) {
	dict, err := h.terms.dictionary(field, h.loadDictionary)
	if err != nil {
		return nil, err
	}
	tr := []rune(term)
	var out []string
	for _, dt := range dict {
		if !hasPrefix(tr, dt.runes, prefixLen) {
			continue
		}
		if withinDistance(tr, dt.runes, maxDist) {
			out = append(out, dt.text)
		}
	}
	return out, nil
}

// fuzzyQuery builds OR(terms) of OR(fields) of OR(expansions). It returns nil when no
// term expands to anything in the index.
func (h *Handle) fuzzyQuery(terms, fields []string, maxDist int) (query.Query, error) {
	var perTerm []query.Query
	for _, term := range terms {
		var perField []query.Query
		for _, field := range fields {
			matches, err := h.expand(field, term, maxDist, h.opts.FuzzyPrefixLength)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				tq := bleve.NewTermQuery(m)
				tq.SetField(field)
				perField = append(perField, tq)
			}
		}
		if len(perField) > 0 {
			perTerm = append(perTerm, bleve.NewDisjunctionQuery(perField...))
		}
	}
	if len(perTerm) == 0 {
		return nil, nil
	}
	return bleve.NewDisjunctionQuery(perTerm...), nil
}
