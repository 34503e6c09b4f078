// Package state persists per-file parsing outputs as a single JSON index.
// The index is process-wide mutable state: all mutation goes through one
// writer that merges under a mutex and replaces the file atomically, so
// readers see either the pre- or post-merge state but never a partial one.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/models"
)

// Store is the single-writer ingestion state store.
type Store struct {
	path   string
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string, logger arbor.ILogger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Read returns the current ingestion state. A missing file yields an empty
// state; a corrupt file is surfaced as an error.
func (s *Store) Read() (models.IngestionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Get returns the state entry for one saved filename.
func (s *Store) Get(filename string) (models.FileState, bool, error) {
	all, err := s.Read()
	if err != nil {
		return models.FileState{}, false, err
	}
	fs, ok := all[filename]
	return fs, ok, nil
}

// MergeAndWrite merges delta into the entry for filename and persists the
// whole index atomically. Existing element outputs survive unless the delta
// carries a replacement; entries are never deleted.
func (s *Store) MergeAndWrite(filename string, delta models.FileState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readLocked()
	if err != nil {
		// A corrupt index is not worth failing an ingestion over; start
		// fresh and let the next merge rebuild it.
		s.logger.Warn().Err(err).Str("file", s.path).Msg("Resetting unreadable ingestion state")
		all = make(models.IngestionState)
	}

	current, ok := all[filename]
	if !ok {
		current = models.NewFileState()
	}
	mergeMaps(current.TextElementOutput, delta.TextElementOutput)
	mergeMaps(current.ImageSummary, delta.ImageSummary)
	mergeMaps(current.TableSummary, delta.TableSummary)
	if delta.ProcessingUID != "" {
		current.ProcessingUID = delta.ProcessingUID
	}
	current.ParsingProcessed = current.ParsingProcessed || delta.ParsingProcessed
	current.VectorstoreProcessed = current.VectorstoreProcessed || delta.VectorstoreProcessed
	all[filename] = current

	return s.writeLocked(all)
}

func mergeMaps(dst, src map[string]models.ElementRecord) {
	for k, v := range src {
		dst[k] = v
	}
}

func (s *Store) readLocked() (models.IngestionState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(models.IngestionState), nil
		}
		return nil, fmt.Errorf("failed to read ingestion state: %w", err)
	}
	var all models.IngestionState
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse ingestion state: %w", err)
	}
	if all == nil {
		all = make(models.IngestionState)
	}
	return all, nil
}

// writeLocked writes the whole index through a temp file and rename so a
// concurrent reader never observes a partial write.
func (s *Store) writeLocked(all models.IngestionState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ingestion state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
