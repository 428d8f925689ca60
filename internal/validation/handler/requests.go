package handler

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"vitalproof/internal/constraints"
	"vitalproof/internal/validation"
	dErrors "vitalproof/pkg/domain-errors"
)

// MaxHistory bounds the history a client may submit with one reading.
const MaxHistory = 500

// CheckHistoryLen rejects a history longer than MaxHistory.
func CheckHistoryLen(history []ReadingRequest) error {
	if len(history) > MaxHistory {
		return dErrors.New(dErrors.CodeMalformedInput, fmt.Sprintf("history is limited to %d readings", MaxHistory))
	}
	return nil
}

// ReadingRequest is the wire form of a reading.
type ReadingRequest struct {
	MetricType string     `json:"metric_type"`
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit,omitempty"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// Parse converts the wire reading, defaulting ObservedAt to now.
func (r ReadingRequest) Parse(now time.Time) (validation.Reading, error) {
	metric := strings.ToLower(strings.TrimSpace(r.MetricType))
	if metric == "" {
		return validation.Reading{}, dErrors.New(dErrors.CodeMalformedInput, "reading.metric_type is required")
	}
	if r.Value == nil || math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0) {
		return validation.Reading{}, dErrors.New(dErrors.CodeMalformedInput, "reading.value must be a finite number")
	}
	observed := now
	if r.ObservedAt != nil {
		observed = r.ObservedAt.UTC()
	}
	return validation.Reading{
		MetricType: constraints.MetricType(metric),
		Value:      *r.Value,
		Unit:       strings.TrimSpace(r.Unit),
		ObservedAt: observed,
	}, nil
}

// ValidateRequest is the body of POST /validate-biometric.
type ValidateRequest struct {
	Reading         ReadingRequest   `json:"reading"`
	ConstraintSetID string           `json:"constraint_set_id"`
	History         []ReadingRequest `json:"history,omitempty"`

	parsedSetID uuid.UUID
}

func (r *ValidateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := CheckHistoryLen(r.History); err != nil {
		return err
	}
	id, err := uuid.Parse(strings.TrimSpace(r.ConstraintSetID))
	if err != nil {
		return dErrors.New(dErrors.CodeMalformedInput, "constraint_set_id must be a UUID")
	}
	r.parsedSetID = id
	return nil
}

// ParsedSetID returns the validated constraint set id.
func (r *ValidateRequest) ParsedSetID() uuid.UUID {
	return r.parsedSetID
}

// ParseReadings converts the reading and its history. History entries
// without a timestamp are rejected since they cannot be ordered.
func ParseReadings(reading ReadingRequest, history []ReadingRequest, now time.Time) (validation.Reading, []validation.Reading, error) {
	parsed, err := reading.Parse(now)
	if err != nil {
		return validation.Reading{}, nil, err
	}
	out := make([]validation.Reading, 0, len(history))
	for _, h := range history {
		if h.ObservedAt == nil {
			return validation.Reading{}, nil, dErrors.New(dErrors.CodeMalformedInput, "history readings require observed_at")
		}
		p, err := h.Parse(now)
		if err != nil {
			return validation.Reading{}, nil, err
		}
		out = append(out, p)
	}
	return parsed, out, nil
}
