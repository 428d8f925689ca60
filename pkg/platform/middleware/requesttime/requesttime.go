// Package requesttime captures one "now" per HTTP request so that every
// timestamp minted while serving it (context resolution, constraint validity,
// proof generation) agrees.
package requesttime

import (
	"net/http"
	"time"

	"vitalproof/pkg/requestcontext"
)

// Middleware stores the request start time in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
