package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/personae/internal/config"
	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/models"
)

func testSearchConfig() *config.SearchConfig {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Search.DefaultLimit = 10
	cfg.Search.MaxLimit = 50
	return &cfg.Search
}

func TestProcessQuery(t *testing.T) {
	bounded := false
	tests := []struct {
		name       string
		query      models.SearchQuery
		boundExact bool
		wantLimit  int
		wantFields []string
	}{
		{"exact is unbounded", models.SearchQuery{Query: "jean", Type: "exact"}, false, 0, config.DefaultSearchFields},
		{"exact honors explicit limit", models.SearchQuery{Query: "jean", Type: "exact", Limit: 5}, false, 5, config.DefaultSearchFields},
		{"exact explicit limit capped", models.SearchQuery{Query: "jean", Type: "exact", Limit: 500}, false, 50, config.DefaultSearchFields},
		{"exact bounded by config", models.SearchQuery{Query: "jean", Type: "exact"}, true, 10, config.DefaultSearchFields},
		{"fuzzy default limit", models.SearchQuery{Query: "jean", Type: "fuzzy"}, false, 10, config.DefaultSearchFields},
		{"fuzzy explicit limit", models.SearchQuery{Query: "jean", Type: "very_fuzzy", Limit: 3}, false, 3, config.DefaultSearchFields},
		{"fuzzy limit capped", models.SearchQuery{Query: "jean", Type: "fuzzy", Limit: 500}, false, 50, config.DefaultSearchFields},
		{"fields deduplicated", models.SearchQuery{Query: "jean", Type: "fuzzy", Fields: []string{" pref_label", "pref_label", ""}}, false, 10, []string{"pref_label"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSearchConfig()
			if tt.boundExact {
				cfg.ExactUnbounded = &bounded
			}
			q, err := ProcessQuery(&tt.query, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, q.Limit)
			assert.Equal(t, tt.wantFields, q.Fields)
			assert.Equal(t, tt.query.Query, q.Text)
		})
	}
}

func TestProcessQuery_InvalidType(t *testing.T) {
	for _, typ := range []string{"", "regex"} {
		_, err := ProcessQuery(&models.SearchQuery{Query: "jean", Type: typ}, testSearchConfig())
		require.Error(t, err)
		assert.True(t, index.IsQueryError(err))
	}
}
