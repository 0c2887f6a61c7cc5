// Package search maintains a Bleve index over target schema fields so users
// reviewing a mapping can look up alternative targets by name or description.
package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
)

// SuggestIndex wraps a Bleve index of schema field documents.
//
// Thread safety: all public methods are safe for concurrent use. The mutex
// protects against corruption during entity reindex operations.
type SuggestIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the suggestion index.
type Options struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // Logger for operations (stderr text if nil)
}

// mappingVersion is incremented whenever the index mapping changes, forcing
// a rebuild on startup when the stored version does not match.
const mappingVersion = "1"

// NewSuggestIndex creates or opens the suggestion index. A corrupted or
// version-mismatched index is removed and recreated; the registry re-feeds
// it on startup so losing it costs only a rebuild.
func NewSuggestIndex(opts Options) (*SuggestIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	indexPath := filepath.Join(opts.DataPath, "suggest.bleve")
	versionPath := filepath.Join(opts.DataPath, "suggest.version")

	var index bleve.Index
	var err error
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		if readErr != nil {
			logger.Info("suggest index has no version file, will rebuild",
				"new_version", mappingVersion,
			)
			needsRebuild = true
		} else if string(existingVersion) != mappingVersion {
			logger.Info("suggest index mapping version changed, will rebuild",
				"old_version", string(existingVersion),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing suggest index, will recreate",
				"path", indexPath,
				"error", err,
			)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, fmt.Errorf("remove old index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0644); writeErr != nil {
			logger.Warn("failed to write suggest index version file", "error", writeErr)
		}
		logger.Info("created new suggest index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened existing suggest index", "path", indexPath)
	}

	return &SuggestIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *SuggestIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// docID keys one schema field document. Entity plus field name is unique per
// registry, so reindexing a schema overwrites its previous documents.
func docID(entity, field string) string {
	return entity + "\x00" + field
}

func fieldDoc(entity string, f *domain.SchemaField) map[string]any {
	return map[string]any{
		"entity":       entity,
		"name":         f.Name,
		"display_name": f.DisplayName,
		"description":  f.Description,
		"aliases":      strings.Join(f.Aliases, " "),
		"type":         string(f.Type),
		"required":     f.Required,
	}
}

// IndexSchema replaces all documents for the schema's entity with the
// schema's current fields. Called on registry load and on every reload.
func (s *SuggestIndex) IndexSchema(schema *domain.TargetSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale, err := s.entityDocIDs(schema.EntityName)
	if err != nil {
		return err
	}

	batch := s.index.NewBatch()
	for _, id := range stale {
		batch.Delete(id)
	}
	for i := range schema.Fields {
		f := &schema.Fields[i]
		if err := batch.Index(docID(schema.EntityName, f.Name), fieldDoc(schema.EntityName, f)); err != nil {
			return fmt.Errorf("batch index %s: %w", f.Name, err)
		}
	}

	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("commit schema batch: %w", err)
	}

	s.logger.Debug("indexed schema fields",
		"entity", schema.EntityName,
		"fields", len(schema.Fields),
	)
	return nil
}

// RemoveEntity drops every document for an entity. Called when a schema file
// is deleted from the registry directory.
func (s *SuggestIndex) RemoveEntity(entity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.entityDocIDs(entity)
	if err != nil {
		return err
	}

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.index.Batch(batch)
}

// entityDocIDs lists the document IDs currently indexed for an entity.
// Callers must hold the mutex.
func (s *SuggestIndex) entityDocIDs(entity string) ([]string, error) {
	tq := bleve.NewTermQuery(entity)
	tq.SetField("entity")

	req := bleve.NewSearchRequestOptions(tq, 1000, 0, false)
	result, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list entity documents: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// DocumentCount returns the total number of indexed field documents.
func (s *SuggestIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}
