package handler

import "vitalproof/internal/constraints"

// DeriveResponse is returned for a single constraint set.
type DeriveResponse struct {
	ConstraintSetID string                     `json:"constraint_set_id"`
	Constraints     *constraints.ConstraintSet `json:"constraints"`
}

// HistoryResponse lists constraint sets oldest first.
type HistoryResponse struct {
	ConstraintSets []*constraints.ConstraintSet `json:"constraint_sets"`
}
