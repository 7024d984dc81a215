package search

import (
	"strings"

	"github.com/samber/lo"

	"github.com/hyperjump/personae/internal/config"
	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/models"
)

// ProcessQuery validates the request and applies configured defaults: search fields,
// and the hit limit. A requested limit is capped at max_limit. Without one, exact
// searches are unbounded unless configured otherwise and the others use default_limit.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) (index.Query, error) {
	typ, err := index.ParseSearchType(query.Type)
	if err != nil {
		return index.Query{}, err
	}

	fields := query.Fields
	if len(fields) == 0 {
		fields = cfg.Fields
	}
	fields = lo.Uniq(lo.Filter(lo.Map(fields, func(f string, _ int) string {
		return strings.TrimSpace(f)
	}), func(f string, _ int) bool { return f != "" }))

	return index.Query{
		Text:   query.Query,
		Type:   typ,
		Fields: fields,
		Limit:  limitFor(typ, query.Limit, cfg),
	}, nil
}

func limitFor(typ index.SearchType, requested int, cfg *config.SearchConfig) int {
	if requested <= 0 && typ == index.SearchExact && cfg.ExactUnboundedOrDefault() {
		return 0
	}
	limit := requested
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 && limit > cfg.MaxLimit {
		limit = cfg.MaxLimit
	}
	return limit
}
