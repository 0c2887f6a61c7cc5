// Package schema loads and serves target schemas from a directory of JSON
// files, one entity per file. Schemas are read-only and versioned by content
// hash; a file change produces a new version and fires invalidation hooks so
// derived indexes are never served stale.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
	"github.com/fieldmapapp/fieldmap-server/internal/validation"
)

// InvalidateFunc is called with the entity name whenever its schema changes
// or disappears.
type InvalidateFunc func(entity string)

// Registry serves versioned target schemas loaded from disk.
//
// Thread safety: all public methods are safe for concurrent use. Reload
// replaces the schema map wholesale under the write lock, so readers see
// either the old or the new set, never a mix.
type Registry struct {
	dir       string
	logger    *slog.Logger
	validator *validation.Validator

	mu      sync.RWMutex
	schemas map[string]*domain.TargetSchema

	hookMu sync.Mutex
	hooks  []InvalidateFunc
}

// NewRegistry loads every schema file in dir. Files that fail to parse or
// validate are skipped with a warning; the registry still starts.
func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		dir:       dir,
		logger:    logger,
		validator: validation.New(),
		schemas:   make(map[string]*domain.TargetSchema),
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the schema for an entity or a SchemaNotFound error.
func (r *Registry) Get(entity string) (*domain.TargetSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[entity]
	if !ok {
		return nil, domainerrors.SchemaNotFoundf("unknown entity %q", entity)
	}
	return s, nil
}

// List returns every loaded entity name in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnInvalidate registers a hook fired when an entity's schema changes.
func (r *Registry) OnInvalidate(fn InvalidateFunc) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Reload re-reads the schema directory and fires invalidation hooks for
// every entity whose version changed, appeared, or disappeared.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn("schema dir does not exist, starting with no schemas", "dir", r.dir)
			return nil
		}
		return fmt.Errorf("read schema dir %s: %w", r.dir, err)
	}

	next := make(map[string]*domain.TargetSchema)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		s, err := r.loadFile(path)
		if err != nil {
			r.logger.Warn("skipping invalid schema file", "path", path, "error", err)
			continue
		}
		if _, dup := next[s.EntityName]; dup {
			r.logger.Warn("duplicate entity in schema dir, keeping first", "entity", s.EntityName, "path", path)
			continue
		}
		next[s.EntityName] = s
	}

	r.mu.Lock()
	prev := r.schemas
	r.schemas = next
	r.mu.Unlock()

	// Fire hooks outside the lock for every changed or removed entity.
	var changed []string
	for name, s := range next {
		if old, ok := prev[name]; !ok || old.Version != s.Version {
			changed = append(changed, name)
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)

	for _, name := range changed {
		r.fireInvalidate(name)
	}

	r.logger.Info("schema registry loaded", "dir", r.dir, "entities", len(next), "changed", len(changed))
	return nil
}

// loadFile parses and validates one schema file, stamping its version with
// the content hash.
func (r *Registry) loadFile(path string) (*domain.TargetSchema, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- Path comes from the configured schema dir
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var s domain.TargetSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if err := r.validator.Validate(&s); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	// Dynamic schema JSON is the classic source of silent key errors; catch
	// duplicate field names at load time instead.
	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		if seen[s.Fields[i].Name] {
			return nil, fmt.Errorf("duplicate field %q", s.Fields[i].Name)
		}
		seen[s.Fields[i].Name] = true
	}

	sum := sha256.Sum256(data)
	s.Version = hex.EncodeToString(sum[:8])
	return &s, nil
}

func (r *Registry) fireInvalidate(entity string) {
	r.hookMu.Lock()
	hooks := make([]InvalidateFunc, len(r.hooks))
	copy(hooks, r.hooks)
	r.hookMu.Unlock()

	for _, fn := range hooks {
		fn(entity)
	}
}
