package handler

import (
	"time"

	"vitalproof/internal/environment"
)

// ResolveResponse is the body returned by POST /environmental-context.
type ResolveResponse struct {
	ContextID string               `json:"context_id"`
	Context   *environment.Context `json:"context"`
	ExpiresAt time.Time            `json:"expires_at"`
}

func FromContext(c *environment.Context, staleness time.Duration) *ResolveResponse {
	return &ResolveResponse{
		ContextID: c.ID.String(),
		Context:   c,
		ExpiresAt: c.ExpiresAt(staleness),
	}
}
