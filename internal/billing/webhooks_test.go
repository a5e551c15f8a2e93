package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v84"

	"github.com/shuren-app/shuren/internal/model"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header the way Stripe's CLI does:
// t=<ts>,v1=hex(hmac_sha256(secret, "<ts>.<payload>")).
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookService(t *testing.T, store EntitlementStore) *Service {
	t.Helper()
	svc, err := New(store, Config{
		SecretKey:     "sk_test_xxx",
		WebhookSecret: testWebhookSecret,
		PriceID:       "price_xxx",
	}, testLogger())
	require.NoError(t, err)
	return svc
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	svc := newWebhookService(t, newFakeStore())
	body := []byte(`{"type":"customer.subscription.updated"}`)

	tests := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"garbage header", "t=123,v1=deadbeef"},
		{"wrong secret", signPayload(body, "whsec_other")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := svc.HandleWebhook(context.Background(), body, tt.header)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Error(t, err)
			assert.False(t, errors.Is(err, ErrMalformedEvent))
		})
	}
}

func TestHandleWebhook_SignedButMalformedPayload(t *testing.T) {
	store := newFakeStore()
	svc := newWebhookService(t, store)

	// Signature verifies; the subscription object then fails to decode
	// because status is not a string.
	body := fmt.Appendf(nil, `{
		"id": "evt_bad",
		"object": "event",
		"api_version": %q,
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_123", "object": "subscription", "status": 5}}
	}`, stripe.APIVersion)

	code, err := svc.HandleWebhook(context.Background(), body, signPayload(body, testWebhookSecret))

	assert.Equal(t, http.StatusBadRequest, code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedEvent))
	assert.Zero(t, store.calls)
}

func TestHandleWebhook_IgnoresUnknownEventType(t *testing.T) {
	store := newFakeStore()
	svc := newWebhookService(t, store)

	body := fmt.Appendf(nil, `{"id":"evt_1","object":"event","api_version":%q,"type":"customer.created","data":{"object":{}}}`, stripe.APIVersion)
	code, err := svc.HandleWebhook(context.Background(), body, signPayload(body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, code)
	assert.NoError(t, err)
	assert.Zero(t, store.calls)
}

func TestHandleWebhook_SubscriptionUpdatedSyncs(t *testing.T) {
	store := newFakeStore()
	svc := newWebhookService(t, store)
	accountID := uuid.New()

	body := fmt.Appendf(nil, `{
		"id": "evt_2",
		"object": "event",
		"api_version": %q,
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_123",
			"object": "subscription",
			"status": "active",
			"customer": "cus_123",
			"metadata": {"user_id": %q},
			"items": {"object": "list", "data": [{"id": "si_1", "object": "subscription_item", "current_period_end": 1790000000}]}
		}}
	}`, stripe.APIVersion, accountID.String())

	code, err := svc.HandleWebhook(context.Background(), body, signPayload(body, testWebhookSecret))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, store.calls)

	ent := store.applied[accountID]
	assert.Equal(t, model.StatusActive, ent.Status)
	require.NotNil(t, ent.PeriodEnd)
	assert.Equal(t, int64(1790000000), ent.PeriodEnd.Unix())
	require.NotNil(t, ent.CustomerRef)
	assert.Equal(t, "cus_123", *ent.CustomerRef)
}

func TestHandleWebhook_SubscriptionDeletedDowngrades(t *testing.T) {
	store := newFakeStore()
	svc := newWebhookService(t, store)
	accountID := uuid.New()

	body := fmt.Appendf(nil, `{
		"id": "evt_3",
		"object": "event",
		"api_version": %q,
		"type": "customer.subscription.deleted",
		"data": {"object": {
			"id": "sub_123",
			"object": "subscription",
			"status": "canceled",
			"customer": "cus_123",
			"metadata": {"user_id": %q}
		}}
	}`, stripe.APIVersion, accountID.String())

	code, err := svc.HandleWebhook(context.Background(), body, signPayload(body, testWebhookSecret))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, store.calls)

	ent := store.applied[accountID]
	assert.Equal(t, model.StatusFree, ent.Status)
	assert.Nil(t, ent.PeriodEnd)
	assert.Nil(t, ent.Provider)
	assert.Nil(t, ent.SubscriptionRef)
}

func TestHandleWebhook_SubscriptionWithoutMetadataIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := newWebhookService(t, store)

	body := fmt.Appendf(nil, `{
		"id": "evt_4",
		"object": "event",
		"api_version": %q,
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_123",
			"object": "subscription",
			"status": "active",
			"customer": "cus_123"
		}}
	}`, stripe.APIVersion)

	code, err := svc.HandleWebhook(context.Background(), body, signPayload(body, testWebhookSecret))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, store.calls)
}

func TestHandleWebhook_InvoiceWithoutSubscriptionIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := newWebhookService(t, store)

	body := fmt.Appendf(nil, `{
		"id": "evt_5",
		"object": "event",
		"api_version": %q,
		"type": "invoice.payment_succeeded",
		"data": {"object": {"id": "in_123", "object": "invoice"}}
	}`, stripe.APIVersion)

	code, err := svc.HandleWebhook(context.Background(), body, signPayload(body, testWebhookSecret))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, store.calls)
}
