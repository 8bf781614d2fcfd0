// Package tracker keeps a durable record of generation requests that are
// currently in flight. The record exists for UI visibility and stale-entry
// cleanup only; it is never used to resume interrupted work.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StaleAfter is how long an entry may sit in the file before it is treated
// as orphaned by an abnormal termination and purged.
const StaleAfter = time.Hour

// Entry is one in-flight generation request. Status is always "processing"
// while the entry exists; finished requests are deleted, not transitioned.
type Entry struct {
	ID          string    `json:"id"`
	Voice       string    `json:"voice"`
	TextPreview string    `json:"textPreview"`
	Text        string    `json:"text"`
	RequestedAt time.Time `json:"requestedAt"`
	StartTime   time.Time `json:"startTime"`
	Status      string    `json:"status"`
}

// Tracker is a file-backed list of entries. Every mutation is a full
// read-modify-write of the backing file, serialized by a mutex and written
// through an atomic rename so concurrent requests cannot tear the file.
type Tracker struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

func New(path string, log zerolog.Logger) *Tracker {
	return &Tracker{path: path, log: log}
}

// Add appends a fresh entry for the given request and returns it.
func (t *Tracker) Add(voice, textPreview, text string, requestedAt time.Time) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.readLocked()
	entry := Entry{
		ID:          strconv.FormatInt(time.Now().UnixNano(), 10),
		Voice:       voice,
		TextPreview: textPreview,
		Text:        text,
		RequestedAt: requestedAt.UTC(),
		StartTime:   time.Now().UTC(),
		Status:      "processing",
	}
	entries = append(entries, entry)
	if err := t.writeLocked(entries); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Remove deletes every entry matching both voice and textPreview. Two
// concurrent requests sharing a voice and an identical preview are both
// removed by either one's completion; that matching is a known limitation
// kept for compatibility with the original store.
func (t *Tracker) Remove(voice, textPreview string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.readLocked()
	kept := entries[:0]
	for _, e := range entries {
		if e.Voice == voice && e.TextPreview == textPreview {
			continue
		}
		kept = append(kept, e)
	}
	return t.writeLocked(kept)
}

// RemoveAll truncates the backing file to an empty list.
func (t *Tracker) RemoveAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLocked(nil)
}

// CleanOld drops entries whose StartTime is older than StaleAfter.
func (t *Tracker) CleanOld() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.readLocked()
	cutoff := time.Now().UTC().Add(-StaleAfter)
	kept := entries[:0]
	for _, e := range entries {
		if e.StartTime.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(entries) {
		return nil
	}
	return t.writeLocked(kept)
}

// List returns the current entries sorted by RequestedAt descending.
func (t *Tracker) List() []Entry {
	t.mu.Lock()
	entries := t.readLocked()
	t.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RequestedAt.After(entries[j].RequestedAt)
	})
	return entries
}

// readLocked loads the entry list. A missing file is an empty list; a corrupt
// file is reset to empty and treated as recoverable, not fatal.
func (t *Tracker) readLocked() []Entry {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Error().Err(err).Str("path", t.path).Msg("reading tracker file")
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.log.Error().Err(err).Str("path", t.path).Msg("tracker file corrupt, resetting")
		if werr := t.writeLocked(nil); werr != nil {
			t.log.Error().Err(werr).Msg("resetting tracker file")
		}
		return nil
	}
	return entries
}

func (t *Tracker) writeLocked(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tracker entries: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create tracker dir: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tracker file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("replace tracker file: %w", err)
	}
	return nil
}
