package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vitalproof/internal/anchoring"
	dErrors "vitalproof/pkg/domain-errors"
	"vitalproof/pkg/platform/httputil"
	"vitalproof/pkg/requestcontext"
)

// Service schedules and reports ledger anchors.
type Service interface {
	Anchor(ctx context.Context, userID, proofID string) (*anchoring.Result, error)
	Status(ctx context.Context, userID, proofID string) (*anchoring.Result, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/anchor-proof", h.HandleAnchor)
	r.Get("/anchor-proof/{proofID}", h.HandleStatus)
}

// AnchorRequest is the body of POST /anchor-proof.
type AnchorRequest struct {
	ProofID string `json:"proof_id"`
}

func (r *AnchorRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ProofID = strings.TrimSpace(r.ProofID)
	if r.ProofID == "" {
		return dErrors.New(dErrors.CodeMalformedInput, "proof_id is required")
	}
	return nil
}

// HandleAnchor handles POST /anchor-proof. The submission runs in the
// background, so the response is always 202 on success.
func (h *Handler) HandleAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[AnchorRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.Anchor(ctx, userID, req.ProofID)
	if err != nil {
		h.logger.WarnContext(ctx, "anchor request failed",
			"request_id", requestID,
			"user_id", userID,
			"proof_id", req.ProofID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, result)
}

// HandleStatus handles GET /anchor-proof/{proofID}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	result, err := h.service.Status(ctx, userID, chi.URLParam(r, "proofID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
