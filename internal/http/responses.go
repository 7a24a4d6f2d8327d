package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fjod/go_shop/internal/pricing"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/service"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondFieldErrors reports malformed input with per-field messages.
func respondFieldErrors(w http.ResponseWriter, fields map[string]string) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:  "validation failed",
		Code:   "validation_error",
		Fields: fields,
	})
}

// handleServiceError maps service-layer errors onto HTTP statuses. Business
// rule failures are client-visible and never retried; anything unmapped is an
// internal error.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidCursor):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrPriceChanged),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, repository.ErrDiscountExhausted),
		errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrPaymentFailed),
		errors.Is(err, repository.ErrDiscountNotFound),
		errors.Is(err, pricing.ErrDiscountInactive),
		errors.Is(err, pricing.ErrDiscountNotYet),
		errors.Is(err, pricing.ErrDiscountExpired),
		errors.Is(err, pricing.ErrDiscountExhausted),
		errors.Is(err, pricing.ErrMinimumNotMet):
		respondError(w, http.StatusUnprocessableEntity, "business_rule", err.Error())

	case errors.Is(err, service.ErrPaymentOwnership):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())

	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func getUserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value("user_id").(string); ok {
		return userID
	}
	return ""
}
