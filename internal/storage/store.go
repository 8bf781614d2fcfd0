// Package storage owns generated artifacts: audio files in the output
// directory and their descriptive metadata in a pluggable metadata store.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("artifact not found")

// Metadata describes one generated artifact. The JSON shape matches the
// flat-object array format consumers of the backing store expect.
type Metadata struct {
	Filename    string    `json:"filename"`
	Voice       string    `json:"voice"`
	Text        string    `json:"text"`
	Speed       float64   `json:"speed"`
	Format      string    `json:"format"`
	Chunks      int       `json:"chunks"`
	Combined    bool      `json:"combined"`
	RequestedAt time.Time `json:"requestedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MetadataStore persists artifact metadata. Implementations: a JSON-array
// file rewritten wholesale per mutation, and an optional Postgres store.
type MetadataStore interface {
	Add(ctx context.Context, meta Metadata) error
	All(ctx context.Context) ([]Metadata, error)
	Get(ctx context.Context, filename string) (Metadata, error)
	Rename(ctx context.Context, oldName, newName string) error
	Remove(ctx context.Context, filename string) error
	RemoveAll(ctx context.Context) error
	// CleanOrphans drops metadata whose artifact file no longer exists.
	// An empty existing list is a no-op rather than a wipe.
	CleanOrphans(ctx context.Context, existing []string) error
	Close() error
}
