package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vitalproof/internal/constraints"
	dErrors "vitalproof/pkg/domain-errors"
	"vitalproof/pkg/platform/httputil"
	"vitalproof/pkg/requestcontext"
)

// Service defines the constraint operations exposed over HTTP.
type Service interface {
	DeriveConstraints(ctx context.Context, userID string, metricType string, contextID uuid.UUID, demo *constraints.Demographics) (*constraints.ConstraintSet, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*constraints.ConstraintSet, error)
	History(ctx context.Context, userID string, metricType string) ([]*constraints.ConstraintSet, error)
}

// Handler wires constraint endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts constraint endpoints on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/constraint-parameters", h.HandleDerive)
	r.Get("/constraint-parameters/history", h.HandleHistory)
	r.Get("/constraint-parameters/{constraintSetID}", h.HandleGet)
}

// HandleDerive handles POST /constraint-parameters.
func (h *Handler) HandleDerive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[DeriveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	set, err := h.service.DeriveConstraints(ctx, userID, req.MetricType, req.ParsedContextID(), req.Demographics)
	if err != nil {
		h.logger.ErrorContext(ctx, "constraint derivation failed",
			"request_id", requestID,
			"user_id", userID,
			"metric_type", req.MetricType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "constraint parameters served",
		"request_id", requestID,
		"user_id", userID,
		"constraint_set_id", set.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, &DeriveResponse{ConstraintSetID: set.ID.String(), Constraints: set})
}

// HandleGet handles GET /constraint-parameters/{constraintSetID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "constraintSetID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeMalformedInput, "constraint set id must be a UUID"))
		return
	}

	set, err := h.service.Get(ctx, userID, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &DeriveResponse{ConstraintSetID: set.ID.String(), Constraints: set})
}

// HandleHistory handles GET /constraint-parameters/history?metric_type=.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	sets, err := h.service.History(ctx, userID, r.URL.Query().Get("metric_type"))
	if err != nil {
		h.logger.WarnContext(ctx, "constraint history failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if sets == nil {
		sets = []*constraints.ConstraintSet{}
	}
	httputil.WriteJSON(w, http.StatusOK, &HistoryResponse{ConstraintSets: sets})
}
