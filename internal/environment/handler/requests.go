package handler

import (
	dErrors "vitalproof/pkg/domain-errors"
)

// ResolveRequest is the body of POST /environmental-context.
type ResolveRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Validate checks presence only; range checks belong to the resolver so
// they surface as InvalidCoordinate.
func (r *ResolveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Latitude == nil || r.Longitude == nil {
		return dErrors.New(dErrors.CodeMalformedInput, "latitude and longitude are required")
	}
	return nil
}
