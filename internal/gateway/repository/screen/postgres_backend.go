package screen

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sdui/internal/screen"
)

// PostgresBackend keeps the latest config per (screen, variant) in one row.
type PostgresBackend struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresBackend{db: db}, nil
}

func (b *PostgresBackend) ensureSchema(ctx context.Context) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("postgres backend is nil")
	}
	b.schemaOnce.Do(func() {
		_, b.schemaErr = b.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS screen_configs (
  screen_name TEXT NOT NULL,
  variant TEXT NOT NULL,
  version BIGINT NOT NULL,
  config JSONB NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  PRIMARY KEY (screen_name, variant)
);
`)
	})
	return b.schemaErr
}

func (b *PostgresBackend) Load(ctx context.Context) ([]Record, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, `SELECT screen_name, variant, config FROM screen_configs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, 32)
	for rows.Next() {
		var (
			rec Record
			raw []byte
		)
		if err := rows.Scan(&rec.Screen, &rec.Variant, &raw); err != nil {
			return nil, err
		}
		cfg, err := screen.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", rec.Screen, rec.Variant, err)
		}
		rec.Config = cfg
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) Save(ctx context.Context, rec Record) error {
	if err := b.ensureSchema(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(rec.Config)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, `
INSERT INTO screen_configs (screen_name, variant, version, config, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (screen_name, variant)
DO UPDATE SET version=EXCLUDED.version,
  config=EXCLUDED.config,
  updated_at=EXCLUDED.updated_at`,
		rec.Screen, rec.Variant, rec.Config.Metadata.Version, raw)
	return err
}

func (b *PostgresBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
