package testutil

import (
	"net/http"
	"time"

	"vitalproof/pkg/requestcontext"
)

// WithUserID marks the request as authenticated for userID, the way the
// auth middleware would.
func WithUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithAuth combines WithUserID and WithTime, the typical state of a request
// that has passed the middleware chain.
func WithAuth(req *http.Request, userID string, now time.Time) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithTime(ctx, now)
	return req.WithContext(ctx)
}
