package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/samber/lo"

	"github.com/hyperjump/personae/internal/metrics"
	"github.com/hyperjump/personae/pkg/utils"
)

// SearchType selects the matching mode of a query.
type SearchType string

const (
	SearchExact     SearchType = "exact"
	SearchFuzzy     SearchType = "fuzzy"
	SearchVeryFuzzy SearchType = "very_fuzzy"
)

// ParseSearchType validates a search type name. Surrounding whitespace and case are ignored.
func ParseSearchType(s string) (SearchType, error) {
	switch t := SearchType(utils.NormalizeText(s)); t {
	case SearchExact, SearchFuzzy, SearchVeryFuzzy:
		return t, nil
	case "":
		return "", &QueryError{Query: s, Reason: "search type is required"}
	default:
		return "", &QueryError{Query: s, Reason: fmt.Sprintf("unknown search type %q (want exact, fuzzy or very_fuzzy)", s)}
	}
}

// distance returns the edit distance of a fuzzy type.
func (t SearchType) distance() int {
	if t == SearchVeryFuzzy {
		return VeryFuzzyDistance
	}
	return FuzzyDistance
}

// Query is a search request against a handle.
type Query struct {
	Text string
	Type SearchType
	// Fields restricts matching to these text fields. Empty means every text field.
	Fields []string
	// Limit caps the number of hits. Zero or negative means unbounded.
	Limit int
}

// Hit identifies a matching document.
type Hit struct {
	ID     string `json:"id"`
	IDEndp string `json:"_id_endp"`
}

// Search runs q against the committed documents. Hits are ordered by descending
// score, ties broken by ascending numeric id. Malformed input yields a *QueryError.
func (h *Handle) Search(ctx context.Context, q Query) ([]Hit, error) {
	start := time.Now()
	hits, err := h.search(ctx, q)
	label := string(q.Type)
	if _, perr := ParseSearchType(label); perr != nil {
		label = "invalid"
	}
	metrics.Queries.WithLabelValues(label, metrics.Result(err)).Inc()
	metrics.QueryDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return hits, err
}

func (h *Handle) search(ctx context.Context, q Query) ([]Hit, error) {
	typ, err := ParseSearchType(string(q.Type))
	if err != nil {
		return nil, err
	}
	fields, err := h.resolveFields(q.Fields)
	if err != nil {
		return nil, err
	}
	text := utils.NormalizeText(q.Text)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrIndexClosed
	}
	if text == "" {
		return []Hit{}, nil
	}

	var bq query.Query
	if typ == SearchExact {
		clauses, err := parseExact(text, h.schema)
		if err != nil {
			return nil, err
		}
		bq = h.exactQuery(clauses, fields)
	} else {
		bq, err = h.fuzzyQuery(strings.Fields(text), fields, typ.distance())
		if err != nil {
			return nil, fmt.Errorf("index search failed: %w", err)
		}
	}
	if bq == nil {
		return []Hit{}, nil
	}

	size := q.Limit
	if size <= 0 {
		n, err := h.idx.DocCount()
		if err != nil {
			return nil, fmt.Errorf("index search failed: %w", err)
		}
		size = int(n)
	}
	if size == 0 {
		return []Hit{}, nil
	}

	req := bleve.NewSearchRequestOptions(bq, size, 0, false)
	req.Fields = []string{FieldNameIDEndp}
	req.SortByCustom(search.SortOrder{
		&search.SortScore{Desc: true},
		&search.SortField{Field: sortField, Type: search.SortFieldAsNumber},
	})
	res, err := h.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	return lo.Map(res.Hits, func(d *search.DocumentMatch, _ int) Hit {
		idEndp, _ := d.Fields[FieldNameIDEndp].(string)
		return Hit{ID: d.ID, IDEndp: idEndp}
	}), nil
}

// resolveFields validates requested fields. Empty selects every text field.
func (h *Handle) resolveFields(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return h.schema.TextFields(), nil
	}
	fields = lo.Uniq(lo.Map(fields, func(f string, _ int) string { return strings.TrimSpace(f) }))
	for _, f := range fields {
		if _, ok := h.schema.Field(f); !ok {
			return nil, &QueryError{Query: f, Reason: "unknown field"}
		}
		if !h.schema.HasTextField(f) {
			return nil, &QueryError{Query: f, Reason: "identifier field is not searchable"}
		}
	}
	return fields, nil
}

// exactQuery combines parsed clauses with OR as the default operator. It returns nil
// when there is nothing to match.
func (h *Handle) exactQuery(clauses []clause, fields []string) query.Query {
	var must, should, mustNot []query.Query
	for _, c := range clauses {
		q := h.clauseQuery(c, fields)
		switch c.occur {
		case occurMust:
			must = append(must, q)
		case occurMustNot:
			mustNot = append(mustNot, q)
		default:
			should = append(should, q)
		}
	}
	switch {
	case len(must) == 0 && len(mustNot) == 0 && len(should) == 0:
		return nil
	case len(must) == 0 && len(mustNot) == 0:
		return bleve.NewDisjunctionQuery(should...)
	}
	bq := bleve.NewBooleanQuery()
	if len(must) > 0 {
		bq.AddMust(must...)
	}
	if len(should) > 0 {
		bq.AddShould(should...)
	}
	if len(mustNot) > 0 {
		bq.AddMustNot(mustNot...)
	}
	return bq
}

func (h *Handle) clauseQuery(c clause, fields []string) query.Query {
	targets := fields
	if c.field != "" {
		targets = []string{c.field}
	}
	qs := lo.Map(targets, func(f string, _ int) query.Query {
		switch {
		case f == h.schema.IDField():
			tq := bleve.NewTermQuery(c.text)
			tq.SetField(f)
			return tq
		case c.phrase:
			pq := bleve.NewMatchPhraseQuery(c.text)
			pq.SetField(f)
			return pq
		default:
			mq := bleve.NewMatchQuery(c.text)
			mq.SetField(f)
			return mq
		}
	})
	if len(qs) == 1 {
		return qs[0]
	}
	return bleve.NewDisjunctionQuery(qs...)
}
