package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v84"

	"github.com/shuren-app/shuren/internal/model"
)

// ErrMalformedEvent marks an event that passed signature verification but
// whose payload did not decode. Distinguishes a broken payload from a
// tampered one for the handler layer.
var ErrMalformedEvent = errors.New("billing: malformed event payload")

// HandleWebhook processes a Stripe webhook event. Returns the HTTP status
// code to respond with and any error. Verifies the webhook signature, then
// dispatches to the appropriate handler based on event type. Unrecognized
// event types are acknowledged without processing.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, sigHeader string) (int, error) {
	event, err := stripe.ConstructEvent(body, sigHeader, s.webhookSecret)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("billing: invalid webhook signature: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return s.handleSubscriptionEvent(ctx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaid(ctx, event)
	default:
		return http.StatusOK, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) (int, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return http.StatusBadRequest, fmt.Errorf("%w: checkout session: %v", ErrMalformedEvent, err)
	}

	// Checkout completion alone says nothing about the subscription state;
	// fetch the full subscription and apply that.
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		s.logger.Warn("billing: checkout completed without subscription", "session_id", sess.ID)
		return http.StatusOK, nil
	}
	return s.syncSubscriptionByID(ctx, sess.Subscription.ID)
}

func (s *Service) handleSubscriptionEvent(ctx context.Context, event stripe.Event) (int, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return http.StatusBadRequest, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
	}
	return s.applySubscription(ctx, &sub)
}

func (s *Service) handleInvoicePaid(ctx context.Context, event stripe.Event) (int, error) {
	// Only the subscription reference matters here; decode it directly
	// rather than depending on the full invoice shape.
	var inv struct {
		Subscription string `json:"subscription"`
	}
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return http.StatusBadRequest, fmt.Errorf("%w: invoice: %v", ErrMalformedEvent, err)
	}
	if inv.Subscription == "" {
		return http.StatusOK, nil
	}
	return s.syncSubscriptionByID(ctx, inv.Subscription)
}

func (s *Service) syncSubscriptionByID(ctx context.Context, subscriptionID string) (int, error) {
	sub, err := s.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("billing: retrieve subscription: %w", err)
	}
	return s.applySubscription(ctx, sub)
}

// applySubscription projects a Stripe subscription onto the account's
// entitlement row. Subscriptions without a user_id metadata key cannot be
// attributed and are acknowledged without effect.
func (s *Service) applySubscription(ctx context.Context, sub *stripe.Subscription) (int, error) {
	userIDStr, ok := sub.Metadata["user_id"]
	if !ok || userIDStr == "" {
		s.logger.Warn("billing: subscription missing user_id metadata", "subscription_id", sub.ID)
		return http.StatusOK, nil
	}
	accountID, err := uuid.Parse(userIDStr)
	if err != nil {
		s.logger.Warn("billing: subscription has malformed user_id metadata",
			"subscription_id", sub.ID, "user_id", userIDStr)
		return http.StatusOK, nil
	}

	ent := projectEntitlement(sub)
	if err := s.store.UpsertEntitlement(ctx, accountID, ent); err != nil {
		return http.StatusInternalServerError, fmt.Errorf("billing: sync entitlement: %w", err)
	}

	s.logger.Info("billing: entitlement synced",
		"account_id", accountID,
		"subscription_id", sub.ID,
		"stripe_status", sub.Status,
		"status", ent.Status,
	)
	return http.StatusOK, nil
}

// projectEntitlement maps the subscription onto the stored projection. A
// lapsed subscription clears the period end, provider, and subscription
// reference; the customer reference survives so a later re-subscribe reuses
// the same Stripe customer.
func projectEntitlement(sub *stripe.Subscription) model.Entitlement {
	ent := model.Entitlement{Status: mapStatus(sub.Status)}

	if sub.Customer != nil && sub.Customer.ID != "" {
		customer := sub.Customer.ID
		ent.CustomerRef = &customer
	}

	if ent.Status == model.StatusFree {
		return ent
	}

	provider := providerName
	ent.Provider = &provider
	if sub.ID != "" {
		subID := sub.ID
		ent.SubscriptionRef = &subID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		end := time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
		ent.PeriodEnd = &end
	}
	return ent
}
