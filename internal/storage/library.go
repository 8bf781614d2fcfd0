package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Library pairs artifact audio files on disk with their metadata store.
type Library struct {
	outputDir string
	meta      MetadataStore
	log       zerolog.Logger
}

// FileInfo is one listed artifact: the on-disk facts plus metadata when the
// store still has it.
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

func NewLibrary(outputDir string, meta MetadataStore, log zerolog.Logger) *Library {
	return &Library{outputDir: outputDir, meta: meta, log: log}
}

// Save writes the audio bytes and records metadata. A metadata failure is
// logged and swallowed: the audio file on disk is the durable artifact.
func (l *Library) Save(ctx context.Context, filename string, audio []byte, meta Metadata) error {
	name, err := safeName(filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.outputDir, name), audio, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	meta.Filename = name
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if err := l.meta.Add(ctx, meta); err != nil {
		l.log.Error().Err(err).Str("filename", name).Msg("saving artifact metadata")
	}
	return nil
}

// List reports every artifact in the output directory, newest request first.
// Metadata orphaned by deleted files is purged opportunistically.
func (l *Library) List(ctx context.Context) ([]FileInfo, error) {
	dirents, err := os.ReadDir(l.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	names := make([]string, 0, len(dirents))
	infos := make([]FileInfo, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		names = append(names, de.Name())
		infos = append(infos, FileInfo{Name: de.Name(), Size: fi.Size()})
	}

	if err := l.meta.CleanOrphans(ctx, names); err != nil {
		l.log.Error().Err(err).Msg("cleaning orphaned metadata")
	}

	all, err := l.meta.All(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("reading artifact metadata")
		all = nil
	}
	byName := make(map[string]Metadata, len(all))
	for _, m := range all {
		byName[m.Filename] = m
	}
	for i := range infos {
		if m, ok := byName[infos[i].Name]; ok {
			meta := m
			infos[i].Metadata = &meta
		}
	}

	sort.Slice(infos, func(i, j int) bool {
		mi, mj := infos[i].Metadata, infos[j].Metadata
		switch {
		case mi != nil && mj != nil:
			return mi.RequestedAt.After(mj.RequestedAt)
		case mi != nil:
			return true
		case mj != nil:
			return false
		default:
			return infos[i].Name > infos[j].Name
		}
	})
	return infos, nil
}

// Read returns the artifact bytes and whatever metadata survives for it.
func (l *Library) Read(ctx context.Context, filename string) ([]byte, Metadata, error) {
	name, err := safeName(filename)
	if err != nil {
		return nil, Metadata{}, err
	}
	audio, err := os.ReadFile(filepath.Join(l.outputDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Metadata{}, ErrNotFound
		}
		return nil, Metadata{}, fmt.Errorf("read artifact: %w", err)
	}
	meta, err := l.meta.Get(ctx, name)
	if err != nil {
		meta = Metadata{Filename: name}
	}
	return audio, meta, nil
}

// Rename moves the artifact file and updates its metadata record.
func (l *Library) Rename(ctx context.Context, oldName, newName string) error {
	from, err := safeName(oldName)
	if err != nil {
		return err
	}
	to, err := safeName(newName)
	if err != nil {
		return err
	}
	src := filepath.Join(l.outputDir, from)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("rename artifact: %w", err)
	}
	if err := os.Rename(src, filepath.Join(l.outputDir, to)); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	if err := l.meta.Rename(ctx, from, to); err != nil && err != ErrNotFound {
		l.log.Error().Err(err).Str("from", from).Str("to", to).Msg("renaming artifact metadata")
	}
	return nil
}

// Delete removes the artifact file and its metadata.
func (l *Library) Delete(ctx context.Context, filename string) error {
	name, err := safeName(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.outputDir, name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	if err := l.meta.Remove(ctx, name); err != nil {
		l.log.Error().Err(err).Str("filename", name).Msg("removing artifact metadata")
	}
	return nil
}

// DeleteAll removes every artifact and truncates the metadata store.
func (l *Library) DeleteAll(ctx context.Context) error {
	dirents, err := os.ReadDir(l.outputDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(l.outputDir, de.Name())); err != nil {
			l.log.Error().Err(err).Str("filename", de.Name()).Msg("removing artifact file")
		}
	}
	return l.meta.RemoveAll(ctx)
}

// safeName rejects anything that could escape the output directory.
func safeName(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	return name, nil
}
