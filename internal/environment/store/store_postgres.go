package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vitalproof/internal/environment"
	"vitalproof/pkg/platform/sentinel"
)

// Schema creates the context table.
const Schema = `
CREATE TABLE IF NOT EXISTS environment_contexts (
	id              UUID PRIMARY KEY,
	content_hash    TEXT NOT NULL,
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	altitude_meters DOUBLE PRECISION NOT NULL,
	temperature_c   DOUBLE PRECISION NOT NULL,
	humidity_pct    DOUBLE PRECISION NOT NULL,
	pressure_hpa    DOUBLE PRECISION NOT NULL,
	timezone        TEXT NOT NULL,
	resolved_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS environment_contexts_hash_idx ON environment_contexts (content_hash);
`

const selectColumns = `id, content_hash, latitude, longitude, altitude_meters, temperature_c,
	humidity_pct, pressure_hpa, timezone, resolved_at`

// PostgresStore persists contexts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, c *environment.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO environment_contexts (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Hash, c.Latitude, c.Longitude, c.AltitudeMeters, c.TemperatureC,
		c.HumidityPct, c.PressureHPa, c.Timezone, c.ResolvedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save environment context: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*environment.Context, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM environment_contexts WHERE id = $1`, id)
	return scanContext(row)
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*environment.Context, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+`
		FROM environment_contexts WHERE content_hash = $1
		ORDER BY resolved_at LIMIT 1`, hash)
	return scanContext(row)
}

func scanContext(row *sql.Row) (*environment.Context, error) {
	var c environment.Context
	err := row.Scan(&c.ID, &c.Hash, &c.Latitude, &c.Longitude, &c.AltitudeMeters, &c.TemperatureC,
		&c.HumidityPct, &c.PressureHPa, &c.Timezone, &c.ResolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find environment context: %w", err)
	}
	c.ResolvedAt = c.ResolvedAt.UTC()
	return &c, nil
}
