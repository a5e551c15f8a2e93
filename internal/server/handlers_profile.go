package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shuren-app/shuren/internal/model"
	"github.com/shuren-app/shuren/internal/storage"
)

// HandleGetProfile handles GET /api/profile.
func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, _ := h.accountFromRequest(r)
	if accountID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "auth_required")
		return
	}

	profile, err := h.store.GetProfile(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		h.logger.Error("profile fetch failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "profile_fetch_failed")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdateProfile handles POST /api/profile: lazy-creates the profile row
// on first edit and applies only the supplied fields.
func (h *Handlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, _ := h.accountFromRequest(r)
	if accountID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "auth_required")
		return
	}

	var upd model.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if upd.GoalPerWeek != nil && *upd.GoalPerWeek < 1 {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if upd.ExperienceLevel != nil {
		switch *upd.ExperienceLevel {
		case model.ExperienceBeginner, model.ExperienceIntermediate, model.ExperienceAdvanced:
		default:
			writeError(w, http.StatusBadRequest, "invalid_body")
			return
		}
	}

	if _, err := h.store.UpsertProfile(r.Context(), accountID, upd); err != nil {
		h.logger.Error("profile update failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "profile_update_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
