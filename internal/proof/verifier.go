package proof

import (
	"encoding/hex"

	"vitalproof/internal/constraints"
	"vitalproof/internal/environment"
	"vitalproof/internal/validation"
)

// Evidence is the stored state a verification is checked against.
type Evidence struct {
	Stored  *Proof
	Set     *constraints.ConstraintSet
	Context *environment.Context // nil when no context matches the hash
	Policy  *constraints.Policy
	Options validation.Options
}

// Check runs the verification steps in order and returns the first failing
// reason, or ReasonConsistent. Errors are reserved for internal faults.
func Check(supplied PublicInputs, opening *Opening, ev Evidence) (Reason, error) {
	suppliedHash, err := supplied.Hash()
	if err != nil {
		return "", err
	}
	if suppliedHash != ev.Stored.PublicInputsHash {
		return ReasonTamperDetected, nil
	}

	if reason := checkConstraints(ev); reason != ReasonConsistent {
		return reason, nil
	}
	if opening == nil {
		return ReasonConsistent, nil
	}

	nonce, err := hex.DecodeString(opening.Nonce)
	if err != nil {
		return ReasonCommitmentMismatch, nil
	}
	if !CommitmentsEqual(Commit(opening.Value, nonce, ev.Stored.PublicInputsHash), ev.Stored.Commitment) {
		return ReasonCommitmentMismatch, nil
	}

	// The claim must follow from the opened value. History is not part of
	// the statement, so only the range check is re-run.
	verdict, err := validation.Validate(validation.Reading{
		MetricType: constraints.MetricType(ev.Stored.PublicInputs.MetricType),
		Value:      opening.Value,
		ObservedAt: ev.Stored.GeneratedAt,
	}, ev.Set.Derivation, nil, ev.Options)
	if err != nil || ClaimFor(verdict.IsValid) != ev.Stored.PublicInputs.Claim {
		return ReasonClaimMismatch, nil
	}
	return ReasonConsistent, nil
}

// checkConstraints confirms the published bounds are what the policy
// derives today from the recorded context.
func checkConstraints(ev Evidence) Reason {
	pub := ev.Stored.PublicInputs
	set := ev.Set
	if string(set.MetricType) != pub.MetricType ||
		set.MinValue != pub.MinValue ||
		set.MaxValue != pub.MaxValue ||
		set.ContextHash != pub.ContextHash {
		return ReasonConstraintMismatch
	}
	if ev.Context == nil || ev.Context.Hash != pub.ContextHash {
		return ReasonConstraintMismatch
	}
	if recomputed, err := ev.Context.ComputeHash(); err != nil || recomputed != pub.ContextHash {
		return ReasonConstraintMismatch
	}
	derived, err := constraints.Derive(ev.Policy, set.MetricType, ev.Context, set.Demographics)
	if err != nil || !derived.SameBounds(set.Derivation) {
		return ReasonConstraintMismatch
	}
	return ReasonConsistent
}
