package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/credentials"
)

const maxWebhookBodyBytes = int64(65536)

// StripeWebhook grants VIP when a checkout for the paywall product completes.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	logger := h.logger.Named("billing")
	if h.opts.StripeWebhookSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("read error", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		writeError(w, http.StatusBadRequest, "Missing signature")
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, h.opts.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn("signature verification failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	fresh, err := h.recordStripeEvent(r, event)
	if err != nil {
		logger.Error("event save failed", zap.String("event_id", event.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if !fresh {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		if err := h.handleCheckoutCompleted(r, event); err != nil {
			logger.Error("checkout handling failed", zap.String("event_id", event.ID), zap.Error(err))
			h.forgetStripeEvent(r, event.ID)
			h.writeAppError(w, r, err)
			return
		}
	default:
		logger.Debug("unhandled event type", zap.String("type", string(event.Type)))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// recordStripeEvent stores the event id and reports whether it was seen for the first time.
func (h *Handler) recordStripeEvent(r *http.Request, event stripe.Event) (bool, error) {
	if h.db == nil {
		return true, nil
	}
	res, err := h.db.ExecContext(r.Context(), `
		INSERT INTO public.billing_events (stripe_event_id, event_type, payload, received_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (stripe_event_id) DO NOTHING
	`, event.ID, string(event.Type), string(event.Data.Raw))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// forgetStripeEvent lets a Stripe retry reprocess an event whose handling failed.
func (h *Handler) forgetStripeEvent(r *http.Request, id string) {
	if h.db == nil {
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM public.billing_events WHERE stripe_event_id = $1`, id); err != nil {
		h.logger.Named("billing").Warn("event forget failed", zap.String("event_id", id), zap.Error(err))
	}
}

func (h *Handler) handleCheckoutCompleted(r *http.Request, event stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return err
	}
	email := cs.CustomerEmail
	if cs.CustomerDetails != nil && strings.TrimSpace(cs.CustomerDetails.Email) != "" {
		email = cs.CustomerDetails.Email
	}
	if strings.TrimSpace(email) == "" {
		h.logger.Named("billing").Warn("checkout without customer e-mail", zap.String("checkout", cs.ID))
		return nil
	}
	err := h.accounts.SetVIP(r.Context(), email, true)
	if errors.Is(err, credentials.ErrNotFound) {
		h.logger.Named("billing").Warn("checkout for unknown user", zap.String("email", email))
		return nil
	}
	if err != nil {
		return err
	}
	h.emitEvent(credentials.NormalizeEmail(email), realtimeEvent{Type: eventCreditsUpdated, VIP: true})
	return nil
}
