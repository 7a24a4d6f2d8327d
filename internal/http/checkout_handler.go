package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/service"
)

type CheckoutInitiator interface {
	InitiateCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
}

type CheckoutHandler struct {
	checkout CheckoutInitiator
	timeout  time.Duration
}

func NewCheckoutHandler(checkout CheckoutInitiator, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, timeout: timeout}
}

type CheckoutRequestDTO struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Phone        string `json:"phone"`
	DiscountCode string `json:"discount_code"`
}

type CheckoutResponseDTO struct {
	PaymentURL string `json:"payment_url"`
	Reference  string `json:"reference"`
	Total      int64  `json:"total"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if fields := validateCheckoutRequest(&req); len(fields) > 0 {
		respondFieldErrors(w, fields)
		return
	}

	resp, err := h.checkout.InitiateCheckout(ctx, &service.CheckoutRequest{
		UserID: userID,
		Email:  req.Email,
		Address: domain.Address{
			Name:       req.Name,
			Line1:      req.Line1,
			Line2:      req.Line2,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
			Country:    req.Country,
			Phone:      req.Phone,
		},
		DiscountCode: strings.TrimSpace(req.DiscountCode),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CheckoutResponseDTO{
		PaymentURL: resp.PaymentURL,
		Reference:  resp.Reference,
		Total:      resp.Total,
	})
}

func validateCheckoutRequest(req *CheckoutRequestDTO) map[string]string {
	fields := make(map[string]string)
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			fields[field] = "is required"
		}
	}

	require("email", req.Email)
	require("name", req.Name)
	require("line1", req.Line1)
	require("city", req.City)
	require("state", req.State)
	require("postal_code", req.PostalCode)
	require("country", req.Country)

	if req.Email != "" && !strings.Contains(req.Email, "@") {
		fields["email"] = "must be a valid email address"
	}
	return fields
}
