package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credora-labs/kestrel/internal/assess"
	"github.com/credora-labs/kestrel/internal/domain"
	"github.com/credora-labs/kestrel/internal/identity"
	"github.com/credora-labs/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	service  *assess.Service
	registry *identity.Registry
	ledger   domain.LedgerRepository
	cache    domain.Cache
	bus      domain.EventBus
	validate *validator.Validate
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(service *assess.Service, registry *identity.Registry, ledger domain.LedgerRepository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		service:  service,
		registry: registry,
		ledger:   ledger,
		cache:    cache,
		bus:      bus,
		validate: validator.New(),
		version:  version,
	}
}

// EvaluateRequest is the request body for POST /fraud/evaluate.
type EvaluateRequest struct {
	UserID           string `json:"userId" validate:"required"`
	WalletAddress    string `json:"walletAddress" validate:"required"`
	Amount           string `json:"amount" validate:"required"`
	AssetSymbol      string `json:"assetSymbol"`
	CollateralAmount string `json:"collateralAmount"`
}

// EvaluateResponse is the response for POST /fraud/evaluate.
type EvaluateResponse struct {
	Assessment *domain.FraudAssessment `json:"assessment"`
	Metadata   struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /fraud/evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId, walletAddress and amount are required",
		})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be a non-negative decimal string",
		})
		return
	}

	if req.AssetSymbol == "" {
		req.AssetSymbol = "C2FLR"
	}
	if req.CollateralAmount == "" {
		req.CollateralAmount = "0"
	}

	// Record the loan request before assessing it, so velocity and
	// history signals see this borrower's own activity.
	loan := &domain.Loan{
		ID:               uuid.New().String(),
		Borrower:         req.WalletAddress,
		Amount:           amount.String(),
		AssetSymbol:      req.AssetSymbol,
		CollateralAmount: req.CollateralAmount,
		Status:           domain.LoanStatusPending,
	}
	if err := h.ledger.SaveLoan(ctx, loan); err != nil {
		slog.Error("failed to save loan request", "error", err)
	}

	assessment, err := h.service.EvaluateLoan(ctx, req.UserID, req.WalletAddress, &domain.LoanRequest{
		Amount:           amount.String(),
		AssetSymbol:      req.AssetSymbol,
		CollateralAmount: req.CollateralAmount,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := EvaluateResponse{Assessment: assessment}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	a, err := h.ledger.GetAssessment(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// LoanRequestBody is the request body for POST /loans.
type LoanRequestBody struct {
	Borrower         string `json:"borrower" validate:"required"`
	Amount           string `json:"amount" validate:"required"`
	AssetSymbol      string `json:"assetSymbol"`
	CollateralAmount string `json:"collateralAmount"`
	TermDays         int    `json:"termDays"`
}

// CreateLoan handles POST /loans.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req LoanRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "borrower and amount are required",
		})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be a non-negative decimal string",
		})
		return
	}

	if req.AssetSymbol == "" {
		req.AssetSymbol = "C2FLR"
	}
	if req.CollateralAmount == "" {
		req.CollateralAmount = "0"
	}

	loan := &domain.Loan{
		ID:               uuid.New().String(),
		Borrower:         req.Borrower,
		Amount:           amount.String(),
		AssetSymbol:      req.AssetSymbol,
		CollateralAmount: req.CollateralAmount,
		TermDays:         req.TermDays,
		Status:           domain.LoanStatusPending,
	}

	if err := h.ledger.SaveLoan(r.Context(), loan); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

// GetLoan handles GET /loans/{id}.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	loan, err := h.ledger.GetLoan(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

// ListLoans handles GET /loans?borrower=0x...
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	borrower := r.URL.Query().Get("borrower")
	if borrower == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "borrower query parameter is required",
		})
		return
	}

	loans, err := h.ledger.ListLoans(r.Context(), borrower)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if loans == nil {
		loans = []*domain.Loan{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loans": loans,
		"count": len(loans),
	})
}

// LoanStatusBody is the request body for POST /loans/{id}/status.
type LoanStatusBody struct {
	Status string `json:"status" validate:"required,oneof=Pending Active Repaid Defaulted"`
	Lender string `json:"lender"`
}

// UpdateLoanStatus handles POST /loans/{id}/status.
func (h *Handler) UpdateLoanStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req LoanStatusBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status must be one of Pending, Active, Repaid, Defaulted",
		})
		return
	}

	loan, err := h.ledger.UpdateLoanStatus(r.Context(), id, req.Status, req.Lender)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

// RegisterIdentityRequest is the request body for POST /identity/register.
type RegisterIdentityRequest struct {
	WalletAddress          string `json:"walletAddress" validate:"required"`
	UniquePersonID         string `json:"uniquePersonId" validate:"required"`
	FaceEmbeddingHash      string `json:"faceEmbeddingHash"`
	DeviceFingerprintHash  string `json:"deviceFingerprintHash"`
	BehaviourSignatureHash string `json:"behaviourSignatureHash"`
}

// RegisterIdentity handles POST /identity/register.
func (h *Handler) RegisterIdentity(w http.ResponseWriter, r *http.Request) {
	var req RegisterIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "walletAddress and uniquePersonId are required",
		})
		return
	}

	did, err := h.registry.Register(r.Context(), identity.RegisterInput{
		WalletAddress:          req.WalletAddress,
		UniquePersonID:         req.UniquePersonID,
		FaceEmbeddingHash:      req.FaceEmbeddingHash,
		DeviceFingerprintHash:  req.DeviceFingerprintHash,
		BehaviourSignatureHash: req.BehaviourSignatureHash,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, did)
}

// GetIdentity handles GET /identity/{wallet}.
func (h *Handler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	did, err := h.registry.Lookup(r.Context(), wallet)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, did)
}

// ListRules returns the deterministic rule table.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	specs := rules.BuiltinRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": specs,
		"count": len(specs),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.ledger != nil {
		if err := h.ledger.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeError maps domain errors to HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrDuplicateIdentity):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		slog.Error("upstream unavailable", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "a required upstream data source is unavailable",
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
