package handler

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"intro-eligibility-api/internal/models"
	"intro-eligibility-api/internal/service"
	"intro-eligibility-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 10 << 20, // 10MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// CheckEligibility handles POST /eligibility/check
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.CheckEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.UserID = validation.SanitizeString(req.UserID)
	for i := range req.ProductIDs {
		req.ProductIDs[i] = validation.SanitizeString(req.ProductIDs[i])
	}

	response, err := h.service.CheckEligibility(r.Context(), req.UserID, req.ProductIDs)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// GetProductEligibility handles GET /users/{user_id}/products/{product_id}/eligibility
func (h *Handler) GetProductEligibility(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	productID := validation.SanitizeString(chi.URLParam(r, "product_id"))

	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if productID == "" {
		h.respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	response, err := h.service.CheckProductEligibility(r.Context(), userID, productID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// UpsertProducts handles PUT /products
func (h *Handler) UpsertProducts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.UpsertProductsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	for i := range req.Products {
		p := &req.Products[i]
		p.ID = validation.SanitizeString(p.ID)
		p.DisplayName = validation.SanitizeString(p.DisplayName)
		p.IntroOfferType = validation.SanitizeString(p.IntroOfferType)
	}

	upserted, err := h.service.UpsertProducts(r.Context(), req.Products)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, models.UpsertProductsResponse{
		Upserted: upserted,
	})
}

// StoreReceipt handles PUT /users/{user_id}/receipt
func (h *Handler) StoreReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var req models.StoreReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	blob, err := base64.StdEncoding.DecodeString(req.Receipt)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "receipt must be base64 encoded")
		return
	}

	if err := h.service.StoreReceipt(r.Context(), userID, blob); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecordRedemption handles POST /users/{user_id}/redemptions
func (h *Handler) RecordRedemption(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var req models.RecordRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.ProductID = validation.SanitizeString(req.ProductID)

	if err := h.service.RecordRedemption(r.Context(), userID, req.ProductID); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
