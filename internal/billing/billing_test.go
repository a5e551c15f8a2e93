package billing

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v84"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuren-app/shuren/internal/model"
)

type fakeStore struct {
	applied map[uuid.UUID]model.Entitlement
	calls   int
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{applied: make(map[uuid.UUID]model.Entitlement)}
}

func (f *fakeStore) UpsertEntitlement(_ context.Context, accountID uuid.UUID, ent model.Entitlement) error {
	if f.err != nil {
		return f.err
	}
	f.calls++
	f.applied[accountID] = ent
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNewService_Enabled(t *testing.T) {
	svc, err := New(newFakeStore(), Config{
		SecretKey:     "sk_test_xxx",
		WebhookSecret: "whsec_xxx",
		PriceID:       "price_xxx",
	}, testLogger())

	require.NoError(t, err)
	assert.True(t, svc.Enabled())
}

func TestNewService_Disabled(t *testing.T) {
	svc, err := New(newFakeStore(), Config{}, testLogger())

	require.NoError(t, err)
	assert.False(t, svc.Enabled())
}

func TestNewService_MissingWebhookSecret(t *testing.T) {
	_, err := New(newFakeStore(), Config{SecretKey: "sk_test_xxx", PriceID: "price_xxx"}, testLogger())
	assert.Error(t, err)
}

func TestNewService_MissingPriceID(t *testing.T) {
	_, err := New(newFakeStore(), Config{SecretKey: "sk_test_xxx", WebhookSecret: "whsec_xxx"}, testLogger())
	assert.Error(t, err)
}

func TestCreateCheckoutSession_Disabled(t *testing.T) {
	svc, err := New(newFakeStore(), Config{}, testLogger())
	require.NoError(t, err)

	_, err = svc.CreateCheckoutSession(context.Background(), uuid.New(), "test@example.com")
	assert.ErrorIs(t, err, ErrBillingDisabled)
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   stripe.SubscriptionStatus
		want model.EntitlementStatus
	}{
		{stripe.SubscriptionStatusActive, model.StatusActive},
		{stripe.SubscriptionStatusTrialing, model.StatusTrialing},
		{stripe.SubscriptionStatusPastDue, model.StatusPastDue},
		{stripe.SubscriptionStatusUnpaid, model.StatusPastDue},
		{stripe.SubscriptionStatusCanceled, model.StatusFree},
		{stripe.SubscriptionStatusIncomplete, model.StatusFree},
		{stripe.SubscriptionStatusIncompleteExpired, model.StatusFree},
		{stripe.SubscriptionStatusPaused, model.StatusFree},
		{stripe.SubscriptionStatus(""), model.StatusFree},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, mapStatus(tt.in))
		})
	}
}

func TestProjectEntitlement_Active(t *testing.T) {
	sub := &stripe.Subscription{
		ID:       "sub_123",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_123"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{CurrentPeriodEnd: 1790000000}},
		},
	}

	ent := projectEntitlement(sub)

	assert.Equal(t, model.StatusActive, ent.Status)
	require.NotNil(t, ent.PeriodEnd)
	assert.Equal(t, int64(1790000000), ent.PeriodEnd.Unix())
	require.NotNil(t, ent.Provider)
	assert.Equal(t, "stripe", *ent.Provider)
	require.NotNil(t, ent.SubscriptionRef)
	assert.Equal(t, "sub_123", *ent.SubscriptionRef)
	require.NotNil(t, ent.CustomerRef)
	assert.Equal(t, "cus_123", *ent.CustomerRef)
}

func TestProjectEntitlement_LapsedClearsSubscriptionFields(t *testing.T) {
	sub := &stripe.Subscription{
		ID:       "sub_123",
		Status:   stripe.SubscriptionStatusCanceled,
		Customer: &stripe.Customer{ID: "cus_123"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{CurrentPeriodEnd: 1790000000}},
		},
	}

	ent := projectEntitlement(sub)

	assert.Equal(t, model.StatusFree, ent.Status)
	assert.Nil(t, ent.PeriodEnd)
	assert.Nil(t, ent.Provider)
	assert.Nil(t, ent.SubscriptionRef)
	// The customer reference survives so a re-subscribe reuses the customer.
	require.NotNil(t, ent.CustomerRef)
	assert.Equal(t, "cus_123", *ent.CustomerRef)
}

func TestApplySubscription_MissingMetadataIsAcknowledged(t *testing.T) {
	store := newFakeStore()
	svc, err := New(store, Config{
		SecretKey:     "sk_test_xxx",
		WebhookSecret: "whsec_xxx",
		PriceID:       "price_xxx",
	}, testLogger())
	require.NoError(t, err)

	code, err := svc.applySubscription(context.Background(), &stripe.Subscription{
		ID:     "sub_no_meta",
		Status: stripe.SubscriptionStatusActive,
	})

	assert.Equal(t, 200, code)
	assert.NoError(t, err)
	assert.Zero(t, store.calls)
}

func TestApplySubscription_Idempotent(t *testing.T) {
	store := newFakeStore()
	svc, err := New(store, Config{
		SecretKey:     "sk_test_xxx",
		WebhookSecret: "whsec_xxx",
		PriceID:       "price_xxx",
	}, testLogger())
	require.NoError(t, err)

	accountID := uuid.New()
	sub := &stripe.Subscription{
		ID:       "sub_123",
		Status:   stripe.SubscriptionStatusActive,
		Metadata: map[string]string{"user_id": accountID.String()},
		Customer: &stripe.Customer{ID: "cus_123"},
	}

	for range 2 {
		code, err := svc.applySubscription(context.Background(), sub)
		require.NoError(t, err)
		assert.Equal(t, 200, code)
	}

	assert.Equal(t, 2, store.calls)
	assert.Equal(t, model.StatusActive, store.applied[accountID].Status)
}
