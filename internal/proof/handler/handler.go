package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vitalproof/internal/proof"
	vhandler "vitalproof/internal/validation/handler"
	dErrors "vitalproof/pkg/domain-errors"
	"vitalproof/pkg/platform/httputil"
	"vitalproof/pkg/requestcontext"
)

// Service is the proof lifecycle used by the handler.
type Service interface {
	Generate(ctx context.Context, userID string, req proof.GenerateRequest) (*proof.Proof, *proof.Opening, error)
	Verify(ctx context.Context, req proof.VerifyRequest) (*proof.VerificationResult, error)
	Get(ctx context.Context, userID, proofID string) (*proof.Proof, error)
	Aggregate(ctx context.Context, userID string, proofIDs []string) (*proof.Aggregation, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes that act on the caller's own proofs.
func (h *Handler) Register(r chi.Router) {
	r.Post("/generate-proof", h.HandleGenerate)
	r.Post("/proofs/aggregate", h.HandleAggregate)
	r.Get("/proofs/{proofID}", h.HandleGet)
}

// RegisterPublic mounts verification, which needs no identity.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/verify-proof", h.HandleVerify)
}

// GenerateResponse carries the proof and the one-time opening.
type GenerateResponse struct {
	Proof   *proof.Proof   `json:"proof"`
	Opening *proof.Opening `json:"opening"`
}

// VerifyResponse wraps the outcome of POST /verify-proof.
type VerifyResponse struct {
	VerificationResult *proof.VerificationResult `json:"verification_result"`
}

// ProofResponse wraps a stored proof.
type ProofResponse struct {
	Proof *proof.Proof `json:"proof"`
}

// HandleGenerate handles POST /generate-proof.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[GenerateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	reading, history, err := vhandler.ParseReadings(req.Reading, req.History, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, opening, err := h.service.Generate(ctx, userID, proof.GenerateRequest{
		ConstraintSetID: req.parsedSetID,
		Reading:         reading,
		History:         history,
		ProofType:       req.ProofType,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "proof generation failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "proof served",
		"request_id", requestID,
		"user_id", userID,
		"proof_id", p.ProofID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, &GenerateResponse{Proof: p, Opening: opening})
}

// HandleVerify handles POST /verify-proof. A failed check is still 200.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.Verify(ctx, proof.VerifyRequest{
		ProofID:      req.ProofID,
		PublicInputs: *req.PublicInputs,
		Opening:      req.Opening,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "proof verification errored",
			"request_id", requestID,
			"proof_id", req.ProofID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &VerifyResponse{VerificationResult: result})
}

// HandleGet handles GET /proofs/{proofID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	p, err := h.service.Get(ctx, userID, chi.URLParam(r, "proofID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ProofResponse{Proof: p})
}

// HandleAggregate handles POST /proofs/aggregate.
func (h *Handler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[AggregateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	agg, err := h.service.Aggregate(ctx, userID, req.ProofIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, agg)
}
