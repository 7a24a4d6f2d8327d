package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/service"
)

// signatureHeader carries the processor's HMAC over the raw request body.
const signatureHeader = "X-Paystack-Signature"

const maxWebhookBody = 1 << 20 // 1MB

type Reconciler interface {
	Reconcile(ctx context.Context, reference, sessionUserID string) (*domain.Order, error)
}

type SignatureValidator interface {
	ValidateSignature(body []byte, signature string) bool
}

// WebhookHandler is the untrusted server-to-server entry point. It has no
// session, so the body signature is the only authenticity proof and is
// checked before anything else.
type WebhookHandler struct {
	reconciler Reconciler
	validator  SignatureValidator
	timeout    time.Duration
}

func NewWebhookHandler(reconciler Reconciler, validator SignatureValidator, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		validator:  validator,
		timeout:    timeout,
	}
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// POST /api/v1/payments/webhook
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable request body")
		return
	}

	if !h.validator.ValidateSignature(body, r.Header.Get(signatureHeader)) {
		respondError(w, http.StatusUnauthorized, "invalid_signature", "webhook signature mismatch")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed event payload")
		return
	}

	switch event.Event {
	case "charge.success":
		if event.Data.Reference == "" {
			respondError(w, http.StatusBadRequest, "invalid_request", "event has no payment reference")
			return
		}
		// no session on this path; authenticity came from the signature
		_, err := h.reconciler.Reconcile(ctx, event.Data.Reference, "")
		if err != nil && !errors.Is(err, service.ErrPaymentFailed) {
			// 500 keeps the sender retrying; reconciliation is
			// idempotent so retries are harmless
			log.Printf("webhook reconcile %s: %v", event.Data.Reference, err)
			respondError(w, http.StatusInternalServerError, "internal_error", "reconciliation failed")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		// unrecognized events are acknowledged so the sender stops
		// retrying them
		log.Printf("ignoring webhook event %q", event.Event)
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

// Liveness answers the processor's GET probe.
// GET /api/v1/payments/webhook
func (h *WebhookHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
