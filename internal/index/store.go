package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	manifestName     = "store.yaml"
	generationPrefix = "gen-"
	manifestFormat   = 1
)

// Defaults used when Options leaves a field zero.
const (
	DefaultWriteLockTimeout  = 5 * time.Second
	DefaultOpenTimeout       = 10 * time.Second
	DefaultFuzzyPrefixLength = 1
)

// inUseTimeout bounds the lock check CreateStore runs on the current generation.
const inUseTimeout = 100 * time.Millisecond

// NoFuzzyPrefix disables the shared prefix requirement of fuzzy expansion.
const NoFuzzyPrefix = -1

// Options configures handles returned by CreateIndex and OpenIndex.
type Options struct {
	// WriteLockTimeout bounds how long a write waits for the single-writer lock.
	WriteLockTimeout time.Duration
	// OpenTimeout bounds how long opening a generation waits for its on-disk lock.
	OpenTimeout time.Duration
	// FuzzyPrefixLength is the number of leading runes a fuzzy candidate must share with the term.
	// Zero means DefaultFuzzyPrefixLength; a negative value (NoFuzzyPrefix) requires none.
	FuzzyPrefixLength int
	Logger            *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.WriteLockTimeout <= 0 {
		o.WriteLockTimeout = DefaultWriteLockTimeout
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	switch {
	case o.FuzzyPrefixLength == 0:
		o.FuzzyPrefixLength = DefaultFuzzyPrefixLength
	case o.FuzzyPrefixLength < 0:
		o.FuzzyPrefixLength = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type manifest struct {
	Format     int       `yaml:"format"`
	Generation string    `yaml:"generation,omitempty"`
	Schema     *Schema   `yaml:"schema,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
	UpdatedAt  time.Time `yaml:"updated_at,omitempty"`
}

// Store is the on-disk container of index generations. At most one generation is current.
type Store struct {
	path string

	mu       sync.Mutex
	manifest manifest
}

// CreateStore provisions an empty store at path, removing whatever was there before.
// Re-provisioning an existing path yields a fresh, empty store. A store whose current
// generation is open elsewhere is left alone and ErrStoreInUse is returned.
func CreateStore(path string) (*Store, error) {
	if path == "" {
		return nil, &ProvisioningError{Path: path, Err: errors.New("empty store path")}
	}
	if err := checkNotInUse(path); err != nil {
		return nil, &ProvisioningError{Path: path, Err: err}
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, &ProvisioningError{Path: path, Err: fmt.Errorf("remove previous store: %w", err)}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &ProvisioningError{Path: path, Err: fmt.Errorf("create store directory: %w", err)}
	}
	s := &Store{
		path:     path,
		manifest: manifest{Format: manifestFormat, CreatedAt: time.Now().UTC()},
	}
	if err := s.writeManifest(); err != nil {
		return nil, &ProvisioningError{Path: path, Err: err}
	}
	return s, nil
}

// checkNotInUse fails when the current generation of the store at path cannot be
// locked. Missing or unreadable stores are not in use.
func checkNotInUse(path string) error {
	s, err := OpenStore(path)
	if err != nil {
		return nil
	}
	gen := s.Generation()
	if gen == "" {
		return nil
	}
	dir := s.generationDir(gen)
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	idx, err := bleve.OpenUsing(dir, map[string]interface{}{
		"bolt_timeout": inUseTimeout.String(),
	})
	if errors.Is(err, bolt.ErrTimeout) {
		return fmt.Errorf("%w: generation %s is open by another process", ErrStoreInUse, gen)
	}
	if err != nil {
		return nil
	}
	return idx.Close()
}

// OpenStore loads the store at path. A missing store yields a *NotFoundError.
func OpenStore(path string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(path, manifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path, What: "index store"}
		}
		return nil, fmt.Errorf("failed to read store manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse store manifest: %w", err)
	}
	if m.Format != manifestFormat {
		return nil, fmt.Errorf("unsupported store format %d", m.Format)
	}
	return &Store{path: path, manifest: m}, nil
}

// Path returns the store root directory.
func (s *Store) Path() string { return s.path }

// Exists reports whether the store manifest is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.path, manifestName))
	return err == nil
}

// Generation returns the current generation id, or "" when no index has been created.
func (s *Store) Generation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest.Generation
}

// Schema returns the schema of the current generation.
func (s *Store) Schema() (Schema, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest.Schema == nil {
		return Schema{}, false
	}
	return *s.manifest.Schema, true
}

// CreateIndex registers schema as a new, empty generation and makes it current.
// Superseded generations are removed. Handles still open on them must be closed by the caller.
func (s *Store) CreateIndex(schema Schema, opts Options) (*Handle, error) {
	if err := schema.Validate(); err != nil {
		return nil, &ProvisioningError{Path: s.path, Err: err}
	}
	if !s.Exists() {
		return nil, &NotFoundError{Path: s.path, What: "index store"}
	}
	opts = opts.withDefaults()

	im, err := schema.indexMapping()
	if err != nil {
		return nil, &ProvisioningError{Path: s.path, Err: err}
	}

	gen := uuid.New().String()
	dir := s.generationDir(gen)
	idx, err := bleve.New(dir, im)
	if err != nil {
		return nil, &ProvisioningError{Path: dir, Err: fmt.Errorf("create bleve index: %w", err)}
	}

	s.mu.Lock()
	prev := s.manifest
	s.manifest.Generation = gen
	sc := schema
	s.manifest.Schema = &sc
	s.manifest.UpdatedAt = time.Now().UTC()
	err = s.writeManifest()
	if err != nil {
		s.manifest = prev
	}
	s.mu.Unlock()
	if err != nil {
		_ = idx.Close()
		_ = os.RemoveAll(dir)
		return nil, &ProvisioningError{Path: s.path, Err: err}
	}

	if err := s.removeStale(gen); err != nil {
		opts.Logger.Warn("failed to remove superseded generations", zap.String("store", s.path), zap.Error(err))
	}
	opts.Logger.Info("index generation created", zap.String("store", s.path), zap.String("generation", gen))
	return newHandle(idx, schema, gen, dir, opts), nil
}

// OpenIndex opens the current generation.
func (s *Store) OpenIndex(opts Options) (*Handle, error) {
	s.mu.Lock()
	gen := s.manifest.Generation
	var schema Schema
	if s.manifest.Schema != nil {
		schema = *s.manifest.Schema
	}
	s.mu.Unlock()

	if gen == "" {
		return nil, &NotFoundError{Path: s.path, What: "index generation"}
	}
	opts = opts.withDefaults()
	dir := s.generationDir(gen)
	if _, err := os.Stat(dir); err != nil {
		return nil, &NotFoundError{Path: dir, What: "index generation"}
	}
	idx, err := bleve.OpenUsing(dir, map[string]interface{}{
		"bolt_timeout": opts.OpenTimeout.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}
	return newHandle(idx, schema, gen, dir, opts), nil
}

// Destroy removes every generation and the manifest. Irreversible.
func (s *Store) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("failed to destroy store: %w", err)
	}
	s.manifest = manifest{Format: manifestFormat}
	return nil
}

// WithIndex opens the current generation, runs fn and closes the handle on every exit path.
func WithIndex(s *Store, opts Options, fn func(*Handle) error) error {
	h, err := s.OpenIndex(opts)
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(h)
}

func (s *Store) generationDir(gen string) string {
	return filepath.Join(s.path, generationPrefix+gen)
}

// writeManifest replaces the manifest atomically. Caller holds mu or owns s exclusively.
func (s *Store) writeManifest() error {
	data, err := yaml.Marshal(&s.manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(s.path, manifestName+".*")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.path, manifestName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("switch manifest: %w", err)
	}
	return nil
}

func (s *Store) removeStale(current string) error {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, generationPrefix) || name == generationPrefix+current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.path, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
