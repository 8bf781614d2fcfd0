package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps artifact metadata in Postgres, giving atomic updates
// where the JSON file store only offers last-write-wins rewrites. Enabled by
// setting DATABASE_URL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initArtifactSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initArtifactSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS artifacts (
			filename TEXT PRIMARY KEY,
			voice TEXT NOT NULL,
			text TEXT NOT NULL,
			speed DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			format TEXT NOT NULL,
			chunks INTEGER NOT NULL DEFAULT 1,
			combined BOOLEAN NOT NULL DEFAULT FALSE,
			requested_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_requested_at ON artifacts (requested_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init artifact schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, meta Metadata) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (filename, voice, text, speed, format, chunks, combined, requested_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (filename) DO UPDATE SET
			voice=EXCLUDED.voice,
			text=EXCLUDED.text,
			speed=EXCLUDED.speed,
			format=EXCLUDED.format,
			chunks=EXCLUDED.chunks,
			combined=EXCLUDED.combined,
			requested_at=EXCLUDED.requested_at,
			created_at=EXCLUDED.created_at`,
		meta.Filename,
		meta.Voice,
		meta.Text,
		meta.Speed,
		meta.Format,
		meta.Chunks,
		meta.Combined,
		meta.RequestedAt,
		meta.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save artifact metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Metadata, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT filename, voice, text, speed, format, chunks, combined, requested_at, created_at
		FROM artifacts ORDER BY requested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list artifact metadata: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		if err := rows.Scan(&m.Filename, &m.Voice, &m.Text, &m.Speed, &m.Format, &m.Chunks, &m.Combined, &m.RequestedAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact metadata: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, filename string) (Metadata, error) {
	var m Metadata
	err := s.pool.QueryRow(ctx,
		`SELECT filename, voice, text, speed, format, chunks, combined, requested_at, created_at
		FROM artifacts WHERE filename = $1`, filename).
		Scan(&m.Filename, &m.Voice, &m.Text, &m.Speed, &m.Format, &m.Chunks, &m.Combined, &m.RequestedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("get artifact metadata: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) Rename(ctx context.Context, oldName, newName string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE artifacts SET filename = $2 WHERE filename = $1`, oldName, newName)
	if err != nil {
		return fmt.Errorf("rename artifact metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, filename string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM artifacts WHERE filename = $1`, filename); err != nil {
		return fmt.Errorf("remove artifact metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM artifacts`); err != nil {
		return fmt.Errorf("clear artifact metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) CleanOrphans(ctx context.Context, existing []string) error {
	if len(existing) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM artifacts WHERE filename != ALL($1)`, existing); err != nil {
		return fmt.Errorf("clean orphaned artifact metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
