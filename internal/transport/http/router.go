// Package httptransport assembles the public HTTP surface from the domain
// handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vitalproof/pkg/platform/httputil"
	authmw "vitalproof/pkg/platform/middleware/auth"
	"vitalproof/pkg/platform/middleware/request"
	"vitalproof/pkg/platform/middleware/requesttime"
)

// Registrar mounts a handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Dependencies are the pieces the router wires together. Nil handlers are
// skipped, which is how a disabled ledger drops the anchoring routes.
type Dependencies struct {
	Logger    *slog.Logger
	Validator authmw.JWTValidator

	// Authenticated are mounted behind RequireAuth.
	Authenticated []Registrar
	// Public are reachable without a token.
	Public []Registrar

	Metrics http.Handler
	Health  map[string]HealthCheck
}

// NewRouter builds the chi router.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Recoverer(deps.Logger))
	r.Use(request.Logger(deps.Logger))

	r.Get("/health", healthHandler(deps.Health))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	for _, h := range deps.Public {
		if h != nil {
			h.Register(r)
		}
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.Validator, deps.Logger))
		for _, h := range deps.Authenticated {
			if h != nil {
				h.Register(r)
			}
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// RegistrarFunc adapts a route-mounting function to Registrar.
type RegistrarFunc func(r chi.Router)

func (f RegistrarFunc) Register(r chi.Router) { f(r) }
