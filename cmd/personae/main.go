// Package main is the personae CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/personae/internal/cli"
	"github.com/hyperjump/personae/internal/config"
	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/indexer"
	"github.com/hyperjump/personae/internal/metrics"
	"github.com/hyperjump/personae/internal/models"
	"github.com/hyperjump/personae/internal/search"
	"github.com/hyperjump/personae/internal/server"
	"github.com/hyperjump/personae/internal/storage"
	"github.com/hyperjump/personae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/personae/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence if it exists, so commands run from a checkout
// use the project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index-create":
		runIndexCreate()
	case "index-populate":
		runIndexPopulate()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "person":
		runPerson()
	case "version", "--version", "-v":
		fmt.Printf("personae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config and builds the logger shared by every command.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

// exitWith prints an operator-facing message for err and exits 1.
func exitWith(err error) {
	fmt.Fprintln(os.Stderr, operatorMessage(err))
	os.Exit(1)
}

// operatorMessage turns provisioning and lookup failures into actionable text.
func operatorMessage(err error) string {
	var nf *index.NotFoundError
	var pe *index.ProvisioningError
	switch {
	case errors.As(err, &nf):
		return fmt.Sprintf("No index found: %v", err)
	case errors.Is(err, index.ErrStoreInUse):
		return fmt.Sprintf("Index is in use: %v\nStop `personae server` before running index-create.", err)
	case errors.As(err, &pe):
		return fmt.Sprintf("Index provisioning failed at %s: %v\nCheck the storage.index_path permissions and free space, then run `personae index-create`.", pe.Path, pe.Err)
	case index.IsRetryable(err):
		return fmt.Sprintf("Index is busy: %v\nAnother writer holds the index; retry, or stop the server before bulk operations.", err)
	case index.IsQueryError(err):
		return fmt.Sprintf("Invalid query: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// indexOptions maps the config onto index handle options.
func indexOptions(cfg *config.Config, logger *zap.Logger) index.Options {
	prefix := cfg.Search.FuzzyPrefixLengthOrDefault()
	if prefix == 0 {
		prefix = index.NoFuzzyPrefix
	}
	return index.Options{
		WriteLockTimeout:  cfg.Index.WriteLockTimeoutDuration(),
		OpenTimeout:       cfg.Index.OpenTimeoutDuration(),
		FuzzyPrefixLength: prefix,
		Logger:            logger,
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", cfg.Debug || *debug))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		exitWith(err)
	}
	defer components.Close()

	srv := server.NewServer(
		components.Engine,
		components.Persons,
		components.Handle,
		cfg,
		logger,
		server.WithSyncStatus(components.Sync),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndexCreate() {
	fs := flag.NewFlagSet("index-create", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, false)
	if err != nil {
		exitWith(err)
	}
	defer components.Close()

	h, n, err := components.Indexer.Rebuild(context.Background())
	if err != nil {
		exitWith(err)
	}
	defer h.Close()
	fmt.Printf("Index created at %s: %d person(s) indexed (generation %s)\n", cfg.Storage.IndexPath, n, h.Generation())
}

func runIndexPopulate() {
	fs := flag.NewFlagSet("index-populate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	fresh := fs.Bool("fresh", true, "start from a new empty generation instead of upserting into the current one")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, false)
	if err != nil {
		exitWith(err)
	}
	defer components.Close()

	h, n, err := components.Indexer.Repopulate(context.Background(), *fresh)
	if err != nil {
		exitWith(err)
	}
	defer h.Close()
	fmt.Printf("Index populated: %d person(s) indexed (generation %s)\n", n, h.Generation())
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: personae search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Search types:
  exact       parsed query: words, "quoted phrases", +required, -excluded, field:value
  fuzzy       every term may be up to 2 edits away from an indexed term
  very_fuzzy  every term may be up to 4 edits away from an indexed term

Examples:
  personae search "jean morain"
  personae search --type fuzzy "jean moran"
  personae search --fields surname_alt_labels --type very_fuzzy morxxn
  personae search --output json '+jean -gioni'
`)
}

func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the query to the front so that
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && a != "-" {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// splitFields parses a comma-separated --fields value.
func splitFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = open the index directly; required while the server holds it)")
	searchType := fs.String("type", string(index.SearchExact), "search type: exact, fuzzy or very_fuzzy")
	fields := fs.String("fields", "", "comma-separated fields to search (default from config)")
	limit := fs.Int("limit", 0, "maximum number of results (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	query := &models.SearchQuery{
		Query:  queryStr,
		Type:   *searchType,
		Fields: splitFields(*fields),
		Limit:  *limit,
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, true)
		if err != nil {
			exitWith(err)
		}
		defer components.Close()
		response, err = components.Engine.Search(context.Background(), query)
		if err != nil {
			exitWith(err)
		}
	}

	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// searchURL builds the GET /api/v1/persons/search URL for query.
func searchURL(serverURL string, query *models.SearchQuery) string {
	params := url.Values{}
	params.Set("query", query.Query)
	params.Set("type_query", query.Type)
	if len(query.Fields) > 0 {
		params.Set("fields", strings.Join(query.Fields, ","))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	return strings.TrimRight(serverURL, "/") + "/api/v1/persons/search?" + params.Encode()
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := getJSON(searchURL(serverURL, query), &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func getJSON(u string, v interface{}) error {
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read storage and index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	status := map[string]interface{}{}
	if *serverURL != "" {
		if err := getJSON(strings.TrimRight(*serverURL, "/")+"/api/v1/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, false)
		if err != nil {
			exitWith(err)
		}
		defer components.Close()
		status, err = collectStatus(context.Background(), cfg, components)
		if err != nil {
			exitWith(err)
		}
	}

	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// collectStatus reports person and index counts without requiring an index to exist.
func collectStatus(ctx context.Context, cfg *config.Config, c *Components) (map[string]interface{}, error) {
	persons, err := c.Persons.CountPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("count persons: %w", err)
	}
	status := map[string]interface{}{
		"persons":       persons,
		"database_path": cfg.Storage.DatabasePath,
		"index_path":    cfg.Storage.IndexPath,
	}
	paths := append(storage.DatabaseFiles(cfg.Storage.DatabasePath), cfg.Storage.IndexPath)
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		status["disk_usage_bytes"] = diskBytes
	}

	store, err := index.OpenStore(cfg.Storage.IndexPath)
	if err != nil {
		if index.IsNotFound(err) {
			status["index_generation"] = ""
			status["in_sync"] = persons == 0
			return status, nil
		}
		return nil, err
	}
	err = index.WithIndex(store, indexOptions(cfg, c.logger), func(h *index.Handle) error {
		docs, err := h.DocCount()
		if err != nil {
			return err
		}
		status["index_documents"] = docs
		status["index_generation"] = h.Generation()
		status["in_sync"] = uint64(persons) == docs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Components holds initialized services.
type Components struct {
	Persons *storage.SQLiteStorage
	Handle  *index.Handle
	Sync    *indexer.Synchronizer
	Engine  *search.Engine
	Indexer *indexer.Indexer
	logger  *zap.Logger
}

// Close releases the index handle and the database.
func (c *Components) Close() {
	if c.Handle != nil {
		_ = c.Handle.Close()
	}
	if c.Persons != nil {
		_ = c.Persons.Close()
	}
}

// initializeComponents opens the person store and, when openIndex is set, the current
// index generation. The synchronizer is subscribed to the store either way so that
// person mutations reach the index whenever a handle is attached.
func initializeComponents(cfg *config.Config, logger *zap.Logger, openIndex bool) (*Components, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	persons, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	opts := indexOptions(cfg, logger)
	c := &Components{
		Persons: persons,
		Sync:    indexer.NewSynchronizer(nil, indexer.WithSyncLogger(logger)),
		Indexer: indexer.NewIndexer(persons, cfg.Storage.IndexPath, opts, indexer.WithLogger(logger)),
		logger:  logger,
	}
	persons.Subscribe(c.Sync)

	if !openIndex {
		return c, nil
	}
	store, err := index.OpenStore(cfg.Storage.IndexPath)
	if err != nil {
		c.Close()
		return nil, err
	}
	h, err := store.OpenIndex(opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Handle = h
	c.Sync.SetHandle(h)
	c.Engine = search.NewEngine(h, persons, &cfg.Search)
	logger.Debug("index opened",
		zap.String("store", store.Path()),
		zap.String("generation", h.Generation()),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`personae - Full-text person index kept in sync with the person database

Usage:
  personae server [flags]                    Start the HTTP server
  personae index-create [flags]              Recreate the index store and index every person
  personae index-populate [flags]            Repopulate the existing index store
  personae search [flags] <query>            Search persons
  personae status [flags]                    Show database and index status
  personae person <add|update|delete|get>    Maintain person records (keeps the index in sync)
  personae version                           Show version
  personae help                              Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/personae/config.yaml,
                     or ./config.yaml when present)

Server Flags:
  --debug            Enable debug logging

Index-populate Flags:
  --fresh            Start from a new empty generation (default: true)

Search Flags:
  --type string      exact, fuzzy or very_fuzzy (default: exact)
  --fields string    Comma-separated fields to search (default from config)
  --limit int        Maximum number of results (default from config; exact is unbounded unless given)
  --output string    text or json (default: text)
  --server string    Query a running server instead of opening the index

Status Flags:
  --output string    text or json (default: text)
  --server string    Ask a running server instead of reading storage directly

Examples:
  personae index-create
  personae search "jean morain"
  personae search --type very_fuzzy --output json morxxn
  personae person add --pref-label "Jean Morain" --forename-alt-labels jean --surname-alt-labels morain
  personae person update --pref-label "Jean Morin" 1
  personae person delete 1
  personae status --output json`)
}
