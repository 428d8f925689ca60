package proof

import (
	"encoding/hex"
	"io"
	"time"

	"vitalproof/internal/constraints"
	"vitalproof/internal/validation"
	dErrors "vitalproof/pkg/domain-errors"
)

// Statement is everything a proof is generated from.
type Statement struct {
	UserID      string
	Set         *constraints.ConstraintSet
	Value       float64
	Verdict     validation.Verdict
	ProofType   ProofType
	GeneratedAt time.Time
}

// Generate commits to the reading under a fresh nonce. The opening is the
// only place the value and nonce appear.
func Generate(st Statement, entropy io.Reader) (*Proof, *Opening, error) {
	if st.Set == nil {
		return nil, nil, dErrors.New(dErrors.CodeInternal, "proof statement has no constraint set")
	}
	if !finite(st.Value) {
		return nil, nil, dErrors.New(dErrors.CodeMalformedInput, "reading value must be finite")
	}
	proofType := st.ProofType
	if proofType == "" {
		proofType = TypeCompliance
	}
	generatedAt := st.GeneratedAt.UTC().Truncate(time.Microsecond)

	inputs := PublicInputs{
		MetricType:      string(st.Set.MetricType),
		MinValue:        st.Set.MinValue,
		MaxValue:        st.Set.MaxValue,
		ContextHash:     st.Set.ContextHash,
		ConstraintSetID: st.Set.ID.String(),
		ProofType:       proofType,
		Claim:           ClaimFor(st.Verdict.IsValid),
		GeneratedAt:     generatedAt,
	}
	inputsHash, err := inputs.Hash()
	if err != nil {
		return nil, nil, err
	}

	nonce, err := NewNonce(entropy)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to draw proof nonce")
	}
	commitment := Commit(st.Value, nonce, inputsHash)

	p := &Proof{
		ProofID:          ProofIDFor(commitment),
		UserID:           st.UserID,
		ProofType:        proofType,
		CircuitID:        CircuitID,
		PublicInputs:     inputs,
		PublicInputsHash: inputsHash,
		Commitment:       commitment,
		GeneratedAt:      generatedAt,
	}
	return p, &Opening{Value: st.Value, Nonce: hex.EncodeToString(nonce)}, nil
}
