package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vitalproof/internal/constraints"
	"vitalproof/pkg/platform/sentinel"
)

// Schema creates the constraint set table. Rows are never updated.
const Schema = `
CREATE TABLE IF NOT EXISTS constraint_sets (
	id                       UUID PRIMARY KEY,
	user_id                  TEXT NOT NULL,
	metric_type              TEXT NOT NULL,
	unit                     TEXT NOT NULL,
	min_value                DOUBLE PRECISION NOT NULL,
	max_value                DOUBLE PRECISION NOT NULL,
	adjustment_factor        DOUBLE PRECISION NOT NULL,
	environmentally_adjusted BOOLEAN NOT NULL,
	applied_adjustments      TEXT[] NOT NULL,
	age_band                 TEXT,
	fitness_level            TEXT,
	context_id               UUID NOT NULL,
	context_hash             TEXT NOT NULL,
	valid_from               TIMESTAMPTZ NOT NULL,
	valid_until              TIMESTAMPTZ NOT NULL,
	CHECK (min_value <= max_value)
);
CREATE UNIQUE INDEX IF NOT EXISTS constraint_sets_key_idx ON constraint_sets (user_id, metric_type, valid_from);
`

const selectColumns = `id, user_id, metric_type, unit, min_value, max_value, adjustment_factor,
	environmentally_adjusted, applied_adjustments, age_band, fitness_level,
	context_id, context_hash, valid_from, valid_until`

// PostgresStore persists constraint sets in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, set *constraints.ConstraintSet) error {
	var ageBand, fitness sql.NullString
	if set.Demographics != nil {
		ageBand = sql.NullString{String: set.Demographics.AgeBand, Valid: set.Demographics.AgeBand != ""}
		fitness = sql.NullString{String: set.Demographics.FitnessLevel, Valid: set.Demographics.FitnessLevel != ""}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO constraint_sets (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		set.ID, set.UserID, string(set.MetricType), set.Unit, set.MinValue, set.MaxValue, set.AdjustmentFactor,
		set.EnvironmentallyAdjusted, pq.Array(set.AppliedAdjustments), ageBand, fitness,
		set.DerivedFromContextID, set.ContextHash, set.ValidFrom, set.ValidUntil,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append constraint set: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*constraints.ConstraintSet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM constraint_sets WHERE id = $1`, id)
	return scanSet(row)
}

func (s *PostgresStore) Latest(ctx context.Context, userID string, metric constraints.MetricType) (*constraints.ConstraintSet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+`
		FROM constraint_sets WHERE user_id = $1 AND metric_type = $2
		ORDER BY valid_from DESC LIMIT 1`, userID, string(metric))
	return scanSet(row)
}

func (s *PostgresStore) ListByUserMetric(ctx context.Context, userID string, metric constraints.MetricType) ([]*constraints.ConstraintSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+`
		FROM constraint_sets WHERE user_id = $1 AND metric_type = $2
		ORDER BY valid_from ASC`, userID, string(metric))
	if err != nil {
		return nil, fmt.Errorf("list constraint sets: %w", err)
	}
	defer rows.Close()

	var out []*constraints.ConstraintSet
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list constraint sets: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSet(row scanner) (*constraints.ConstraintSet, error) {
	var (
		set            constraints.ConstraintSet
		metric         string
		adjustments    pq.StringArray
		ageBand, level sql.NullString
	)
	err := row.Scan(&set.ID, &set.UserID, &metric, &set.Unit, &set.MinValue, &set.MaxValue, &set.AdjustmentFactor,
		&set.EnvironmentallyAdjusted, &adjustments, &ageBand, &level,
		&set.DerivedFromContextID, &set.ContextHash, &set.ValidFrom, &set.ValidUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan constraint set: %w", err)
	}
	set.MetricType = constraints.MetricType(metric)
	set.AppliedAdjustments = []string(adjustments)
	if set.AppliedAdjustments == nil {
		set.AppliedAdjustments = []string{}
	}
	if ageBand.Valid || level.Valid {
		set.Demographics = &constraints.Demographics{AgeBand: ageBand.String, FitnessLevel: level.String}
	}
	set.ValidFrom = set.ValidFrom.UTC()
	set.ValidUntil = set.ValidUntil.UTC()
	return &set, nil
}
