package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vitalproof/internal/constraints"
	"vitalproof/internal/validation"
	dErrors "vitalproof/pkg/domain-errors"
	"vitalproof/pkg/platform/httputil"
	"vitalproof/pkg/requestcontext"
)

// Service validates readings for the authenticated user.
type Service interface {
	ValidateReading(ctx context.Context, userID string, setID uuid.UUID, reading validation.Reading, history []validation.Reading) (*constraints.ConstraintSet, validation.Verdict, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/validate-biometric", h.HandleValidate)
}

// ValidateResponse is the body returned by POST /validate-biometric.
type ValidateResponse struct {
	ConstraintSetID string             `json:"constraint_set_id"`
	Verdict         validation.Verdict `json:"verdict"`
}

// HandleValidate handles POST /validate-biometric.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ValidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	reading, history, err := ParseReadings(req.Reading, req.History, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	set, verdict, err := h.service.ValidateReading(ctx, userID, req.ParsedSetID(), reading, history)
	if err != nil {
		h.logger.WarnContext(ctx, "reading validation failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "validation served",
		"request_id", requestID,
		"user_id", userID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, &ValidateResponse{ConstraintSetID: set.ID.String(), Verdict: verdict})
}
