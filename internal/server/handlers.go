package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shuren-app/shuren/internal/auth"
	"github.com/shuren-app/shuren/internal/chat"
	"github.com/shuren-app/shuren/internal/model"
)

// Store is the storage surface the handlers depend on. *storage.DB satisfies
// it; tests substitute fakes.
type Store interface {
	InsertSession(ctx context.Context, id model.Identity, s model.PracticeSession) (model.PracticeSession, error)
	SessionsInRange(ctx context.Context, id model.Identity, from, to time.Time) ([]model.PracticeSession, error)
	SessionTotals(ctx context.Context, id model.Identity) (model.SessionTotals, error)
	LinkAnonymousSessions(ctx context.Context, accountID uuid.UUID, anonymousID string) (int64, error)
	GetProfile(ctx context.Context, accountID uuid.UUID) (model.Profile, error)
	UpsertProfile(ctx context.Context, accountID uuid.UUID, upd model.ProfileUpdate) (model.Profile, error)
	Ping(ctx context.Context) error
}

// TokenVerifier validates bearer credentials. *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// BillingService is the billing surface the handlers depend on.
// *billing.Service satisfies it.
type BillingService interface {
	Enabled() bool
	CreateCheckoutSession(ctx context.Context, accountID uuid.UUID, email string) (string, error)
	HandleWebhook(ctx context.Context, body []byte, sigHeader string) (int, error)
}

// ChatRelay is the conversational surface the handlers depend on.
// *chat.Relay satisfies it.
type ChatRelay interface {
	Enabled() bool
	Stream(w http.ResponseWriter, r *http.Request, req chat.Request)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	store    Store
	verifier TokenVerifier
	billing  BillingService
	relay    ChatRelay
	logger   *slog.Logger
	version  string
}

// HandlersDeps bundles dependencies for NewHandlers.
type HandlersDeps struct {
	Store    Store
	Verifier TokenVerifier
	Billing  BillingService
	Relay    ChatRelay
	Logger   *slog.Logger
	Version  string
}

// NewHandlers creates the handlers.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		store:    deps.Store,
		verifier: deps.Verifier,
		billing:  deps.Billing,
		relay:    deps.Relay,
		logger:   deps.Logger,
		version:  deps.Version,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]string{
		"status":   status,
		"postgres": dbStatus,
		"version":  h.version,
	})
}
