package billing

import (
	stripe "github.com/stripe/stripe-go/v84"

	"github.com/shuren-app/shuren/internal/model"
)

// mapStatus collapses a Stripe subscription status into the internal
// entitlement enum. Anything outside the table means no premium access.
func mapStatus(status stripe.SubscriptionStatus) model.EntitlementStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return model.StatusActive
	case stripe.SubscriptionStatusTrialing:
		return model.StatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return model.StatusPastDue
	default:
		return model.StatusFree
	}
}
