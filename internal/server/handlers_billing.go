package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/shuren-app/shuren/internal/billing"
)

// HandleCheckout handles POST /api/subscription/checkout.
func (h *Handlers) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	accountID, email := h.accountFromRequest(r)
	if accountID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "auth_required")
		return
	}
	if h.billing == nil || !h.billing.Enabled() {
		writeError(w, http.StatusInternalServerError, "stripe_not_configured")
		return
	}

	url, err := h.billing.CreateCheckoutSession(r.Context(), accountID, email)
	if err != nil {
		h.logger.Error("checkout session failed", "error", err, "account_id", accountID, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "stripe_checkout_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleStripeWebhook handles POST /api/stripe/webhook. The raw body is needed
// for signature verification, so this endpoint never goes through decodeJSON.
func (h *Handlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil || !h.billing.Enabled() {
		writeJSON(w, http.StatusOK, map[string]bool{"ignored": true})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		writeError(w, http.StatusBadRequest, "missing_signature")
		return
	}

	status, err := h.billing.HandleWebhook(r.Context(), body, sig)
	if err != nil {
		h.logger.Error("webhook processing failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		switch {
		case status == http.StatusBadRequest && errors.Is(err, billing.ErrMalformedEvent):
			// The signature checked out; the payload itself was broken.
			writeError(w, status, "invalid_body")
		case status == http.StatusBadRequest:
			writeError(w, status, "invalid_signature")
		default:
			writeError(w, http.StatusInternalServerError, "webhook_processing_failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
