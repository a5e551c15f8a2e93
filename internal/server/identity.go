package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shuren-app/shuren/internal/model"
)

// accountFromRequest resolves the bearer token to an account ID. A missing,
// malformed, or expired token yields uuid.Nil so the caller can fall back to
// anonymous identity; bearer credentials are never a hard failure outside the
// endpoints that require them.
func (h *Handlers) accountFromRequest(r *http.Request) (uuid.UUID, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return uuid.Nil, ""
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return uuid.Nil, ""
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return uuid.Nil, ""
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return uuid.Nil, ""
	}
	return accountID, claims.Email
}

// anonymousIDFromRequest returns the anonymous token from the X-Anonymous-Id
// header, falling back to the request body's anonymous_id field.
func anonymousIDFromRequest(r *http.Request, bodyAnonymousID string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Anonymous-Id")); v != "" {
		return v
	}
	return strings.TrimSpace(bodyAnonymousID)
}

// resolveIdentity applies the ownership precedence: an authenticated account
// wins over any anonymous token; an anonymous token applies only without
// valid bearer credentials. The result may be unidentified.
func (h *Handlers) resolveIdentity(r *http.Request, bodyAnonymousID string) model.Identity {
	if accountID, _ := h.accountFromRequest(r); accountID != uuid.Nil {
		return model.AccountIdentity(accountID)
	}
	if anon := anonymousIDFromRequest(r, bodyAnonymousID); anon != "" {
		return model.AnonymousIdentity(anon)
	}
	return model.Identity{}
}
