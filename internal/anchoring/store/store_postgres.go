package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vitalproof/internal/anchoring"
	"vitalproof/pkg/platform/sentinel"
)

// Schema creates the receipt table. confirmed_at is the only mutable column.
const Schema = `
CREATE TABLE IF NOT EXISTS anchor_receipts (
	proof_id     TEXT PRIMARY KEY,
	ledger_id    TEXT NOT NULL,
	ledger_ref   TEXT NOT NULL,
	digest       TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	confirmed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS anchor_receipts_unconfirmed_idx
	ON anchor_receipts (ledger_id, submitted_at) WHERE confirmed_at IS NULL;
`

const selectColumns = `proof_id, ledger_id, ledger_ref, digest, submitted_at, confirmed_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateIfAbsent relies on the primary key; a concurrent writer's row wins
// and is returned.
func (s *PostgresStore) CreateIfAbsent(ctx context.Context, r *anchoring.Receipt) (*anchoring.Receipt, bool, error) {
	var confirmedAt sql.NullTime
	if r.ConfirmedAt != nil {
		confirmedAt = sql.NullTime{Time: *r.ConfirmedAt, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO anchor_receipts (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (proof_id) DO NOTHING`,
		r.ProofID, r.LedgerID, r.LedgerRef, r.Digest, r.SubmittedAt, confirmedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("create anchor receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create anchor receipt: %w", err)
	}
	if n == 1 {
		out := *r
		return &out, true, nil
	}
	existing, err := s.FindByProofID(ctx, r.ProofID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) FindByProofID(ctx context.Context, proofID string) (*anchoring.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM anchor_receipts WHERE proof_id = $1`, proofID)
	return scanReceipt(row)
}

func (s *PostgresStore) ListUnconfirmed(ctx context.Context, ledgerID string, limit int) ([]*anchoring.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+`
		FROM anchor_receipts WHERE ledger_id = $1 AND confirmed_at IS NULL
		ORDER BY submitted_at ASC LIMIT $2`, ledgerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unconfirmed receipts: %w", err)
	}
	defer rows.Close()

	var out []*anchoring.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unconfirmed receipts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkConfirmed(ctx context.Context, proofID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE anchor_receipts SET confirmed_at = $2
		WHERE proof_id = $1 AND confirmed_at IS NULL`, proofID, at)
	if err != nil {
		return false, fmt.Errorf("confirm anchor receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm anchor receipt: %w", err)
	}
	return n == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (*anchoring.Receipt, error) {
	var (
		r           anchoring.Receipt
		confirmedAt sql.NullTime
	)
	if err := row.Scan(&r.ProofID, &r.LedgerID, &r.LedgerRef, &r.Digest, &r.SubmittedAt, &confirmedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan anchor receipt: %w", err)
	}
	r.SubmittedAt = r.SubmittedAt.UTC()
	if confirmedAt.Valid {
		at := confirmedAt.Time.UTC()
		r.ConfirmedAt = &at
	}
	return &r, nil
}
