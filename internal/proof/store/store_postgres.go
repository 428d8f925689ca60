package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"vitalproof/internal/proof"
	"vitalproof/pkg/platform/sentinel"
)

// Schema creates the proof table. Only verified and verified_at are updated.
const Schema = `
CREATE TABLE IF NOT EXISTS proofs (
	proof_id           TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	proof_type         TEXT NOT NULL,
	circuit_id         TEXT NOT NULL,
	metric_type        TEXT NOT NULL,
	min_value          DOUBLE PRECISION NOT NULL,
	max_value          DOUBLE PRECISION NOT NULL,
	context_hash       TEXT NOT NULL,
	constraint_set_id  UUID NOT NULL,
	claim              TEXT NOT NULL,
	public_inputs_hash TEXT NOT NULL,
	commitment         TEXT NOT NULL,
	generated_at       TIMESTAMPTZ NOT NULL,
	verified           BOOLEAN NOT NULL DEFAULT FALSE,
	verified_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS proofs_user_idx ON proofs (user_id, generated_at);
`

const selectColumns = `proof_id, user_id, proof_type, circuit_id, metric_type, min_value, max_value,
	context_hash, constraint_set_id, claim, public_inputs_hash, commitment, generated_at,
	verified, verified_at`

// PostgresStore persists proofs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *proof.Proof) error {
	in := p.PublicInputs
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proofs (proof_id, user_id, proof_type, circuit_id, metric_type, min_value, max_value,
			context_hash, constraint_set_id, claim, public_inputs_hash, commitment, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ProofID, p.UserID, string(p.ProofType), p.CircuitID, in.MetricType, in.MinValue, in.MaxValue,
		in.ContextHash, in.ConstraintSetID, string(in.Claim), p.PublicInputsHash, p.Commitment, p.GeneratedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create proof: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, proofID string) (*proof.Proof, error) {
	var (
		p          proof.Proof
		proofType  string
		claim      string
		verifiedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM proofs WHERE proof_id = $1`, proofID).Scan(
		&p.ProofID, &p.UserID, &proofType, &p.CircuitID,
		&p.PublicInputs.MetricType, &p.PublicInputs.MinValue, &p.PublicInputs.MaxValue,
		&p.PublicInputs.ContextHash, &p.PublicInputs.ConstraintSetID, &claim,
		&p.PublicInputsHash, &p.Commitment, &p.GeneratedAt, &p.Verified, &verifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find proof: %w", err)
	}
	p.ProofType = proof.ProofType(proofType)
	p.GeneratedAt = p.GeneratedAt.UTC()
	p.PublicInputs.ProofType = p.ProofType
	p.PublicInputs.Claim = proof.Claim(claim)
	p.PublicInputs.GeneratedAt = p.GeneratedAt
	if verifiedAt.Valid {
		at := verifiedAt.Time.UTC()
		p.VerifiedAt = &at
	}
	return &p, nil
}

// MarkVerified flips the flag with a conditional update so concurrent
// verifications agree on a single VerifiedAt.
func (s *PostgresStore) MarkVerified(ctx context.Context, proofID string, at time.Time) (time.Time, bool, error) {
	var verifiedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		UPDATE proofs SET verified = TRUE, verified_at = $2
		WHERE proof_id = $1 AND verified = FALSE
		RETURNING verified_at`, proofID, at).Scan(&verifiedAt)
	if err == nil {
		return verifiedAt.UTC(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, fmt.Errorf("mark proof verified: %w", err)
	}

	var existing sql.NullTime
	err = s.db.QueryRowContext(ctx, `SELECT verified_at FROM proofs WHERE proof_id = $1`, proofID).Scan(&existing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, sentinel.ErrNotFound
		}
		return time.Time{}, false, fmt.Errorf("read proof verification: %w", err)
	}
	if !existing.Valid {
		return time.Time{}, false, fmt.Errorf("proof %s: %w", proofID, sentinel.ErrInvalidState)
	}
	return existing.Time.UTC(), false, nil
}
