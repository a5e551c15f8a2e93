// Package billing integrates Stripe for premium subscription checkout and
// webhook-driven entitlement synchronization. If Stripe is not configured
// (no secret key), checkout returns ErrBillingDisabled and webhook delivery
// is acknowledged without processing.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v84"

	"github.com/shuren-app/shuren/internal/model"
)

// ErrBillingDisabled is returned when Stripe is not configured.
var ErrBillingDisabled = errors.New("billing not configured")

// providerName is recorded on premium entitlements.
const providerName = "stripe"

// EntitlementStore persists the entitlement projection derived from billing
// events.
type EntitlementStore interface {
	UpsertEntitlement(ctx context.Context, accountID uuid.UUID, ent model.Entitlement) error
}

// Service wraps Stripe API calls and applies subscription events to the store.
type Service struct {
	client        *stripe.Client
	store         EntitlementStore
	logger        *slog.Logger
	webhookSecret string
	priceID       string
	appBaseURL    string
	enabled       bool
}

// Config holds Stripe configuration.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	AppBaseURL    string
}

// New creates a billing service. If cfg.SecretKey is empty, the service
// operates in disabled mode. Returns an error if billing is enabled but
// required fields are missing.
func New(store EntitlementStore, cfg Config, logger *slog.Logger) (*Service, error) {
	enabled := cfg.SecretKey != ""

	if enabled {
		if cfg.WebhookSecret == "" {
			return nil, fmt.Errorf("billing: STRIPE_WEBHOOK_SECRET is required when billing is enabled")
		}
		if cfg.PriceID == "" {
			return nil, fmt.Errorf("billing: STRIPE_PRICE_ID is required when billing is enabled")
		}
	}

	var client *stripe.Client
	if enabled {
		client = stripe.NewClient(cfg.SecretKey)
	}

	return &Service{
		client:        client,
		store:         store,
		logger:        logger,
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.PriceID,
		appBaseURL:    cfg.AppBaseURL,
		enabled:       enabled,
	}, nil
}

// Enabled returns true if Stripe is configured.
func (s *Service) Enabled() bool { return s.enabled }

// CreateCheckoutSession creates a Stripe Checkout session for the premium
// subscription. The account ID rides in both the session and subscription
// metadata so every later subscription event can be attributed back to the
// account.
func (s *Service) CreateCheckoutSession(ctx context.Context, accountID uuid.UUID, email string) (string, error) {
	if !s.enabled {
		return "", ErrBillingDisabled
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.appBaseURL + "/settings?upgrade=success"),
		CancelURL:  stripe.String(s.appBaseURL + "/settings?upgrade=cancel"),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id": accountID.String(),
		},
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": accountID.String(),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	sess, err := s.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("billing: create checkout session: %w", err)
	}
	return sess.URL, nil
}
