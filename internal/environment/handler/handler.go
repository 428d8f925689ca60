package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vitalproof/internal/environment"
	"vitalproof/pkg/platform/httputil"
	"vitalproof/pkg/requestcontext"
)

// Service resolves coordinates into environmental contexts.
type Service interface {
	Resolve(ctx context.Context, lat, lon float64) (*environment.Context, error)
	Staleness() time.Duration
}

// Handler exposes the resolver over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts environment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/environmental-context", h.HandleResolve)
}

// HandleResolve handles POST /environmental-context.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resolved, err := h.service.Resolve(ctx, *req.Latitude, *req.Longitude)
	if err != nil {
		h.logger.ErrorContext(ctx, "environmental context resolution failed",
			"request_id", requestID,
			"user_id", requestcontext.UserID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "environmental context served",
		"request_id", requestID,
		"context_id", resolved.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromContext(resolved, h.service.Staleness()))
}
