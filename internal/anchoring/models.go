// Package anchoring publishes proof digests to an append-only ledger. Anchor
// returns at once; submission and confirmation happen in the background.
package anchoring

import (
	"context"
	"errors"
	"time"

	"vitalproof/internal/proof"
	dErrors "vitalproof/pkg/domain-errors"
	"vitalproof/pkg/platform/canonical"
)

// Status is the lifecycle of an anchor.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
)

// Receipt records that a ledger accepted a proof digest. One per proof.
type Receipt struct {
	ProofID     string     `json:"proof_id"`
	LedgerID    string     `json:"ledger_id"`
	LedgerRef   string     `json:"ledger_ref"`
	Digest      string     `json:"digest"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Status derives the anchor status from the receipt.
func (r *Receipt) Status() Status {
	if r.ConfirmedAt != nil {
		return StatusConfirmed
	}
	return StatusSubmitted
}

// Result is returned by Anchor and Status.
type Result struct {
	Status  Status   `json:"status"`
	Receipt *Receipt `json:"receipt,omitempty"`
}

// Entry is what gets written to the ledger. It carries no reading.
type Entry struct {
	ProofID string `json:"proof_id"`
	Digest  string `json:"digest"`
}

// Submission is a ledger's answer to Submit.
type Submission struct {
	Ref         string
	Confirmed   bool
	ConfirmedAt time.Time
}

// Confirmation is a ledger's answer to a status poll.
type Confirmation struct {
	Confirmed bool
	At        time.Time
}

// Ledger is an append-only sink for proof digests.
type Ledger interface {
	ID() string
	Submit(ctx context.Context, entry Entry) (Submission, error)
	Confirmation(ctx context.Context, ref string) (Confirmation, error)
}

// ErrRejected marks a ledger refusal that retrying cannot fix.
var ErrRejected = errors.New("ledger rejected entry")

// IsRetryable reports whether a ledger error may succeed on another attempt.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrRejected)
}

type digestFields struct {
	ProofID          string `json:"proof_id"`
	Commitment       string `json:"commitment"`
	PublicInputsHash string `json:"public_inputs_hash"`
}

// Digest is the canonical SHA-256 over the proof's public identity.
func Digest(p *proof.Proof) (string, error) {
	h, err := canonical.Hash(digestFields{
		ProofID:          p.ProofID,
		Commitment:       p.Commitment,
		PublicInputsHash: p.PublicInputsHash,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute anchor digest")
	}
	return h, nil
}
