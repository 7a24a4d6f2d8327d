package http

import (
	"context"
	"net/http"
	"time"
)

// CallbackHandler is the trusted, session-bearing entry point hit when the
// browser returns from the hosted payment page. The session user id flows
// into reconciliation for the cross-account check.
type CallbackHandler struct {
	reconciler Reconciler
	timeout    time.Duration
}

func NewCallbackHandler(reconciler Reconciler, timeout time.Duration) *CallbackHandler {
	return &CallbackHandler{reconciler: reconciler, timeout: timeout}
}

// GET /api/v1/payments/callback?reference=...
func (h *CallbackHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	reference := r.URL.Query().Get("reference")
	if reference == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "reference is required")
		return
	}

	order, err := h.reconciler.Reconcile(ctx, reference, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}
