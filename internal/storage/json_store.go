package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// JSONStore keeps metadata as a JSON array in a single file. Mutations are
// full read-modify-writes serialized by a mutex and committed with an atomic
// rename. A corrupt or missing file reads as an empty list.
type JSONStore struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

func NewJSONStore(path string, log zerolog.Logger) *JSONStore {
	return &JSONStore{path: path, log: log}
}

// Add records metadata, replacing any existing record for the filename.
func (s *JSONStore) Add(_ context.Context, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.readLocked()
	for i := range entries {
		if entries[i].Filename == meta.Filename {
			entries[i] = meta
			return s.writeLocked(entries)
		}
	}
	entries = append(entries, meta)
	return s.writeLocked(entries)
}

func (s *JSONStore) All(_ context.Context) ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(), nil
}

func (s *JSONStore) Get(_ context.Context, filename string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.readLocked() {
		if m.Filename == filename {
			return m, nil
		}
	}
	return Metadata{}, ErrNotFound
}

func (s *JSONStore) Rename(_ context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.readLocked()
	for i := range entries {
		if entries[i].Filename == oldName {
			entries[i].Filename = newName
			return s.writeLocked(entries)
		}
	}
	return ErrNotFound
}

func (s *JSONStore) Remove(_ context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.readLocked()
	kept := entries[:0]
	for _, m := range entries {
		if m.Filename == filename {
			continue
		}
		kept = append(kept, m)
	}
	return s.writeLocked(kept)
}

func (s *JSONStore) RemoveAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(nil)
}

func (s *JSONStore) CleanOrphans(_ context.Context, existing []string) error {
	if len(existing) == 0 {
		return nil
	}
	keep := make(map[string]bool, len(existing))
	for _, name := range existing {
		keep[name] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.readLocked()
	kept := entries[:0]
	for _, m := range entries {
		if !keep[m.Filename] {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == len(entries) {
		return nil
	}
	s.log.Info().Int("orphans", len(entries)-len(kept)).Msg("cleaning orphaned metadata entries")
	return s.writeLocked(kept)
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) readLocked() []Metadata {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error().Err(err).Str("path", s.path).Msg("reading metadata file")
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var entries []Metadata
	if err := json.Unmarshal(data, &entries); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("metadata file corrupt, treating as empty")
		return nil
	}
	return entries
}

func (s *JSONStore) writeLocked(entries []Metadata) error {
	if entries == nil {
		entries = []Metadata{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace metadata file: %w", err)
	}
	return nil
}
