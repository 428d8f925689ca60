// Package proof issues and verifies hash commitments over biometric readings.
// A proof publishes the constraint bounds, the context hash and a claim, and
// binds the hidden reading through a commitment that only the holder of the
// opening can check.
package proof

import (
	"encoding/hex"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "vitalproof/pkg/domain-errors"
	"vitalproof/pkg/platform/canonical"
)

// CircuitID identifies the statement a proof attests to.
const CircuitID = "healthCheck_v1"

// ProofType labels the kind of attestation requested.
type ProofType string

const (
	TypeCompliance ProofType = "compliance"
	TypeThreshold  ProofType = "threshold"
	TypeRange      ProofType = "range"
	TypeTemporal   ProofType = "temporal"
)

// ParseProofType defaults an empty value to compliance.
func ParseProofType(s string) (ProofType, error) {
	switch t := ProofType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeCompliance, nil
	case TypeCompliance, TypeThreshold, TypeRange, TypeTemporal:
		return t, nil
	default:
		return "", dErrors.New(dErrors.CodeMalformedInput, "unsupported proof_type: "+s)
	}
}

// Claim is the public statement about the hidden reading.
type Claim string

const (
	ClaimCompliant    Claim = "compliant"
	ClaimNonCompliant Claim = "non-compliant"
)

// ClaimFor maps a range check outcome onto a claim. A failing reading is
// never published as compliant.
func ClaimFor(isValid bool) Claim {
	if isValid {
		return ClaimCompliant
	}
	return ClaimNonCompliant
}

// PublicInputs are the non-secret parameters of a proof. They never carry
// the raw reading.
type PublicInputs struct {
	MetricType      string    `json:"metric_type"`
	MinValue        float64   `json:"min_value"`
	MaxValue        float64   `json:"max_value"`
	ContextHash     string    `json:"context_hash"`
	ConstraintSetID string    `json:"constraint_set_id"`
	ProofType       ProofType `json:"proof_type"`
	Claim           Claim     `json:"claim"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// hashedInputs pins the timestamp encoding so equal instants hash equally
// regardless of the zone they were parsed in.
type hashedInputs struct {
	MetricType      string  `json:"metric_type"`
	MinValue        float64 `json:"min_value"`
	MaxValue        float64 `json:"max_value"`
	ContextHash     string  `json:"context_hash"`
	ConstraintSetID string  `json:"constraint_set_id"`
	ProofType       string  `json:"proof_type"`
	Claim           string  `json:"claim"`
	GeneratedAt     string  `json:"generated_at"`
}

// Hash is the SHA-256 of the canonical JSON encoding.
func (p PublicInputs) Hash() (string, error) {
	h, err := canonical.Hash(hashedInputs{
		MetricType:      p.MetricType,
		MinValue:        p.MinValue,
		MaxValue:        p.MaxValue,
		ContextHash:     p.ContextHash,
		ConstraintSetID: p.ConstraintSetID,
		ProofType:       string(p.ProofType),
		Claim:           string(p.Claim),
		GeneratedAt:     p.GeneratedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash public inputs")
	}
	return h, nil
}

// Validate checks shape only. Whether the values are truthful is decided by
// the verifier.
func (p PublicInputs) Validate() error {
	switch {
	case strings.TrimSpace(p.MetricType) == "":
		return dErrors.New(dErrors.CodeMalformedInput, "public_inputs.metric_type is required")
	case !finite(p.MinValue) || !finite(p.MaxValue) || p.MinValue > p.MaxValue:
		return dErrors.New(dErrors.CodeMalformedInput, "public_inputs bounds must be finite with min_value <= max_value")
	case !canonical.IsHexDigest(p.ContextHash):
		return dErrors.New(dErrors.CodeMalformedInput, "public_inputs.context_hash must be a hex SHA-256 digest")
	case p.GeneratedAt.IsZero():
		return dErrors.New(dErrors.CodeMalformedInput, "public_inputs.generated_at is required")
	}
	if _, err := uuid.Parse(p.ConstraintSetID); err != nil {
		return dErrors.New(dErrors.CodeMalformedInput, "public_inputs.constraint_set_id must be a UUID")
	}
	if _, err := ParseProofType(string(p.ProofType)); err != nil || p.ProofType == "" {
		return dErrors.New(dErrors.CodeMalformedInput, "public_inputs.proof_type is invalid")
	}
	if p.Claim != ClaimCompliant && p.Claim != ClaimNonCompliant {
		return dErrors.New(dErrors.CodeMalformedInput, "public_inputs.claim must be compliant or non-compliant")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Proof is the stored record. Only Verified and VerifiedAt ever change, and
// only once.
type Proof struct {
	ProofID          string       `json:"proof_id"`
	UserID           string       `json:"user_id"`
	ProofType        ProofType    `json:"proof_type"`
	CircuitID        string       `json:"circuit_id"`
	PublicInputs     PublicInputs `json:"public_inputs"`
	PublicInputsHash string       `json:"public_inputs_hash"`
	Commitment       string       `json:"commitment"`
	GeneratedAt      time.Time    `json:"generated_at"`
	Verified         bool         `json:"verified"`
	VerifiedAt       *time.Time   `json:"verified_at,omitempty"`
}

// Opening is returned once to the caller and never stored.
type Opening struct {
	Value float64 `json:"value"`
	Nonce string  `json:"nonce"`
}

// Validate checks the opening's encoding.
func (o *Opening) Validate() error {
	if !finite(o.Value) {
		return dErrors.New(dErrors.CodeMalformedInput, "opening.value must be finite")
	}
	raw, err := hex.DecodeString(o.Nonce)
	if err != nil || len(raw) != NonceSize {
		return dErrors.New(dErrors.CodeMalformedInput, "opening.nonce must be 32 hex-encoded bytes")
	}
	return nil
}

// Mode is the verification mode used.
type Mode string

const (
	ModePublic  Mode = "public"
	ModeOpening Mode = "opening"
)

// Reason explains a verification outcome.
type Reason string

const (
	ReasonConsistent         Reason = "consistent"
	ReasonTamperDetected     Reason = "tamper_detected"
	ReasonConstraintMismatch Reason = "constraint_mismatch"
	ReasonCommitmentMismatch Reason = "commitment_mismatch"
	ReasonClaimMismatch      Reason = "claim_mismatch"
)

// VerificationResult is never a bare boolean: a false outcome always
// carries the check that failed.
type VerificationResult struct {
	ProofID    string     `json:"proof_id"`
	Verified   bool       `json:"verified"`
	Reason     Reason     `json:"reason"`
	Mode       Mode       `json:"mode"`
	Claim      Claim      `json:"claim"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}
