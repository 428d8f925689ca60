package handler

import (
	"strings"

	"github.com/google/uuid"

	"vitalproof/internal/constraints"
	dErrors "vitalproof/pkg/domain-errors"
)

// DeriveRequest is the body of POST /constraint-parameters.
type DeriveRequest struct {
	MetricType   string                    `json:"metric_type"`
	ContextID    string                    `json:"context_id"`
	Demographics *constraints.Demographics `json:"demographics,omitempty"`

	parsedContextID uuid.UUID
}

// Validate checks required fields. Metric support and demographic bands are
// checked by the engine against the loaded policy.
func (r *DeriveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.MetricType = strings.TrimSpace(r.MetricType)
	if r.MetricType == "" {
		return dErrors.New(dErrors.CodeMalformedInput, "metric_type is required")
	}
	id, err := uuid.Parse(strings.TrimSpace(r.ContextID))
	if err != nil {
		return dErrors.New(dErrors.CodeMalformedInput, "context_id must be a UUID")
	}
	r.parsedContextID = id
	if r.Demographics != nil {
		r.Demographics.AgeBand = strings.TrimSpace(r.Demographics.AgeBand)
		r.Demographics.FitnessLevel = strings.ToLower(strings.TrimSpace(r.Demographics.FitnessLevel))
	}
	return nil
}

// ParsedContextID returns the validated context id.
func (r *DeriveRequest) ParsedContextID() uuid.UUID {
	return r.parsedContextID
}
