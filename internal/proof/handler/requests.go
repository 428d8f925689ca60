package handler

import (
	"strings"

	"github.com/google/uuid"

	"vitalproof/internal/proof"
	vhandler "vitalproof/internal/validation/handler"
	dErrors "vitalproof/pkg/domain-errors"
)

// GenerateRequest is the body of POST /generate-proof.
type GenerateRequest struct {
	ConstraintSetID string                    `json:"constraint_set_id"`
	Reading         vhandler.ReadingRequest   `json:"reading"`
	History         []vhandler.ReadingRequest `json:"history,omitempty"`
	ProofType       string                    `json:"proof_type,omitempty"`

	parsedSetID uuid.UUID
}

func (r *GenerateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := vhandler.CheckHistoryLen(r.History); err != nil {
		return err
	}
	id, err := uuid.Parse(strings.TrimSpace(r.ConstraintSetID))
	if err != nil {
		return dErrors.New(dErrors.CodeMalformedInput, "constraint_set_id must be a UUID")
	}
	r.parsedSetID = id
	if _, err := proof.ParseProofType(r.ProofType); err != nil {
		return err
	}
	return nil
}

// VerifyRequest is the body of POST /verify-proof.
type VerifyRequest struct {
	ProofID      string              `json:"proof_id"`
	PublicInputs *proof.PublicInputs `json:"public_inputs"`
	Opening      *proof.Opening      `json:"opening,omitempty"`
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ProofID = strings.TrimSpace(r.ProofID)
	if r.ProofID == "" {
		return dErrors.New(dErrors.CodeMalformedInput, "proof_id is required")
	}
	if r.PublicInputs == nil {
		return dErrors.New(dErrors.CodeMalformedInput, "public_inputs is required")
	}
	return nil
}

// AggregateRequest is the body of POST /proofs/aggregate.
type AggregateRequest struct {
	ProofIDs []string `json:"proof_ids"`
}

func (r *AggregateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.ProofIDs) == 0 {
		return dErrors.New(dErrors.CodeMalformedInput, "proof_ids must not be empty")
	}
	for i, id := range r.ProofIDs {
		r.ProofIDs[i] = strings.TrimSpace(id)
		if r.ProofIDs[i] == "" {
			return dErrors.New(dErrors.CodeMalformedInput, "proof_ids must not contain blanks")
		}
	}
	return nil
}
