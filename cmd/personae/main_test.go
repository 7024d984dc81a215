package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/personae/internal/config"
	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/models"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"jean morain", "-type", "fuzzy"},
			expected: []string{"-type", "fuzzy", "jean morain"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-type", "fuzzy", "jean morain"},
			expected: []string{"-type", "fuzzy", "jean morain"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"jean morain"},
			expected: []string{"jean morain"},
		},
		{
			name:     "operators inside a quoted query are not flags",
			args:     []string{"+jean -gioni"},
			expected: []string{"+jean -gioni"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"jean", "morain", "-limit", "5"},
			expected: []string{"-limit", "5", "jean", "morain"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"morain"}, "morain"},
		{"multiple words", []string{"jean", "morain"}, "jean morain"},
		{"single quoted phrase", []string{"jean morain"}, "jean morain"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSplitFields(t *testing.T) {
	assert.Nil(t, splitFields(""))
	assert.Nil(t, splitFields("  "))
	assert.Equal(t, []string{"pref_label", "surname_alt_labels"}, splitFields("pref_label,surname_alt_labels"))
}

func TestSearchURL(t *testing.T) {
	got := searchURL("http://localhost:8000/", &models.SearchQuery{
		Query:  "jean morain",
		Type:   "fuzzy",
		Fields: []string{"pref_label", "surname_alt_labels"},
		Limit:  5,
	})
	assert.Equal(t,
		"http://localhost:8000/api/v1/persons/search?fields=pref_label%2Csurname_alt_labels&limit=5&query=jean+morain&type_query=fuzzy",
		got)

	got = searchURL("http://localhost:8000", &models.SearchQuery{Query: "morain", Type: "exact"})
	assert.Equal(t, "http://localhost:8000/api/v1/persons/search?query=morain&type_query=exact", got)
}

func TestSearchViaHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/persons/search", r.URL.Path)
		if r.URL.Query().Get("type_query") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"search type is required"}`))
			return
		}
		_, _ = w.Write([]byte(`{"query":"morain","type_query":"exact","total":1,"results":[{"id":1,"_id_endp":"person_1","pref_label":"Jean Morain"}]}`))
	}))
	defer ts.Close()

	resp, err := searchViaHTTP(ts.URL, &models.SearchQuery{Query: "morain", Type: "exact"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "person_1", resp.Results[0].IDEndp)

	_, err = searchViaHTTP(ts.URL, &models.SearchQuery{Query: "morain"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "search type is required")
}

func TestOperatorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing index", &index.NotFoundError{Path: "/data/index", What: "index store"}, "No index found"},
		{"provisioning", &index.ProvisioningError{Path: "/data/index", Err: os.ErrPermission}, "personae index-create"},
		{"store in use", &index.ProvisioningError{Path: "/data/index", Err: index.ErrStoreInUse}, "Stop `personae server`"},
		{"busy writer", &index.IndexWriteError{Op: "add", Err: index.ErrWriterLockTimeout}, "Index is busy"},
		{"bad query", &index.QueryError{Query: "\"jean", Reason: "unbalanced quote"}, "Invalid query"},
		{"other", errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, operatorMessage(tt.err), tt.want)
		})
	}
}

func TestIndexOptions(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Index.WriteLockTimeout = "250ms"

	opts := indexOptions(cfg, zap.NewNop())
	assert.Equal(t, 250*time.Millisecond, opts.WriteLockTimeout)
	assert.Equal(t, 10*time.Second, opts.OpenTimeout)
	assert.Equal(t, 1, opts.FuzzyPrefixLength)
	assert.NotNil(t, opts.Logger)

	none := 0
	cfg.Search.FuzzyPrefixLength = &none
	assert.Equal(t, index.NoFuzzyPrefix, indexOptions(cfg, nil).FuzzyPrefixLength)
}

func TestLoadConfig_CwdFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9191\nstorage:\n  index_path: ./index\n"), 0o600))
	// Equivalent of t.Chdir (Go 1.24+), for older toolchains.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, resolved, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), resolved)
	assert.Equal(t, filepath.Join(dir, "index"), cfg.Storage.IndexPath)
}

func TestLoadConfig_ExplicitMissing(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath: filepath.Join(dir, "db", "persons.db"),
			IndexPath:    filepath.Join(dir, "index"),
		},
		Index: config.IndexConfig{WriteLockTimeout: "200ms", OpenTimeout: "1s"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func parsePersonArgs(t *testing.T, args ...string) (*flag.FlagSet, *personFlags) {
	t.Helper()
	fs := flag.NewFlagSet("person", flag.ContinueOnError)
	pf := registerPersonFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs, pf
}

func TestPersonFlags_InputOverridesOnlySetFlags(t *testing.T) {
	base := &models.Person{
		PrefLabel:         "Jean Morain",
		ForenameAltLabels: "jean",
		SurnameAltLabels:  "morain",
		Comment:           "kept",
	}
	fs, pf := parsePersonArgs(t, "--surname-alt-labels", "morain;moreyn", "--canon")

	in := pf.input(fs, base)
	assert.Equal(t, "Jean Morain", in.PrefLabel)
	assert.Equal(t, "morain;moreyn", in.SurnameAltLabels)
	assert.Equal(t, "kept", in.Comment)
	assert.True(t, in.IsCanon)

	fs, pf = parsePersonArgs(t)
	assert.Error(t, func() error { in := pf.input(fs, nil); return in.Validate() }())
}

func TestPersonAction_KeepsIndexInSync(t *testing.T) {
	cfg := testConfig(t)
	logger := zap.NewNop()
	ctx := context.Background()

	c, err := initializeComponents(cfg, logger, false)
	require.NoError(t, err)
	defer c.Close()

	h, n, err := c.Indexer.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	c.Sync.SetHandle(h)
	defer h.Close()

	fs, pf := parsePersonArgs(t, "--pref-label", "Jean Morain", "--forename-alt-labels", "jean", "--surname-alt-labels", "morain")
	p, err := personAction(ctx, c.Persons, "add", 0, pf, fs)
	require.NoError(t, err)
	assert.Equal(t, "person_1", p.IDEndp)

	hits, err := h.Search(ctx, index.Query{Text: "morain", Type: index.SearchExact})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "person_1", hits[0].IDEndp)

	fs, pf = parsePersonArgs(t, "--pref-label", "Jean Morin", "--surname-alt-labels", "morin")
	_, err = personAction(ctx, c.Persons, "update", p.ID, pf, fs)
	require.NoError(t, err)
	hits, err = h.Search(ctx, index.Query{Text: "morain", Type: index.SearchExact})
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = personAction(ctx, c.Persons, "delete", p.ID, nil, nil)
	require.NoError(t, err)
	hits, err = h.Search(ctx, index.Query{Text: "jean", Type: index.SearchExact})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Zero(t, c.Sync.Failures())
}

func TestPersonAction_WithoutIndexKeepsRecord(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	c, err := initializeComponents(cfg, zap.NewNop(), false)
	require.NoError(t, err)
	defer c.Close()

	fs, pf := parsePersonArgs(t, "--pref-label", "Jean Gioni")
	p, err := personAction(ctx, c.Persons, "add", 0, pf, fs)
	require.NoError(t, err)

	got, err := personAction(ctx, c.Persons, "get", p.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Jean Gioni", got.PrefLabel)
	assert.EqualValues(t, 1, c.Sync.Failures())
}

func TestInitializeComponents_MissingIndex(t *testing.T) {
	cfg := testConfig(t)
	_, err := initializeComponents(cfg, zap.NewNop(), true)
	require.Error(t, err)
	assert.True(t, index.IsNotFound(err))
	assert.Contains(t, operatorMessage(err), "index-create")
}

func TestCollectStatus(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	c, err := initializeComponents(cfg, zap.NewNop(), false)
	require.NoError(t, err)
	defer c.Close()

	status, err := collectStatus(ctx, cfg, c)
	require.NoError(t, err)
	assert.EqualValues(t, 0, status["persons"])
	assert.Equal(t, true, status["in_sync"])
	assert.NotContains(t, status, "index_documents")

	require.NoError(t, c.Persons.CreatePerson(ctx, &models.Person{PrefLabel: "Jean Morain", SurnameAltLabels: "morain"}))
	h, _, err := c.Indexer.Rebuild(ctx)
	require.NoError(t, err)
	generation := h.Generation()
	require.NoError(t, h.Close())

	status, err = collectStatus(ctx, cfg, c)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status["persons"])
	assert.EqualValues(t, 1, status["index_documents"])
	assert.Equal(t, generation, status["index_generation"])
	assert.Equal(t, true, status["in_sync"])
}
