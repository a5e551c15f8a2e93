package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shuren-app/shuren/internal/model"
)

type recordSessionRequest struct {
	SequenceSlug string `json:"sequence_slug"`
	DurationSec  int    `json:"duration_sec"`
	AnonymousID  string `json:"anonymous_id"`
}

// HandleRecordSession handles POST /api/sessions.
func (h *Handlers) HandleRecordSession(w http.ResponseWriter, r *http.Request) {
	var req recordSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.SequenceSlug == "" || req.DurationSec < 1 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	id := h.resolveIdentity(r, req.AnonymousID)
	if id.Unidentified() {
		writeError(w, http.StatusBadRequest, "missing_identity")
		return
	}

	_, err := h.store.InsertSession(r.Context(), id, model.PracticeSession{
		SequenceSlug: req.SequenceSlug,
		DurationSec:  req.DurationSec,
		CompletedAt:  time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("record session failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "session_insert_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleSessionsMonth handles GET /api/sessions/month. The month parameter is
// zero-based (0 = January), matching the client's calendar widget; the range
// is the half-open UTC month [first, first of next).
func (h *Handlers) HandleSessionsMonth(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r, "")
	if id.Unidentified() {
		writeError(w, http.StatusBadRequest, "missing_identity")
		return
	}

	year, errY := strconv.Atoi(r.URL.Query().Get("year"))
	month, errM := strconv.Atoi(r.URL.Query().Get("month"))
	if errY != nil || errM != nil || month < 0 || month > 11 {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	start := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows, err := h.store.SessionsInRange(r.Context(), id, start, end)
	if err != nil {
		h.logger.Error("month query failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "month_fetch_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.PracticeSession{"rows": rows})
}

// HandleSessionsTotals handles GET /api/sessions/totals.
func (h *Handlers) HandleSessionsTotals(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r, "")
	if id.Unidentified() {
		writeError(w, http.StatusBadRequest, "missing_identity")
		return
	}

	totals, err := h.store.SessionTotals(r.Context(), id)
	if err != nil {
		h.logger.Error("totals query failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "totals_fetch_failed")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

type linkSessionsRequest struct {
	AnonymousID string `json:"anonymous_id"`
}

// HandleLinkSessions handles POST /api/sessions/link: adopts every session
// recorded under the caller's anonymous token into the authenticated account.
func (h *Handlers) HandleLinkSessions(w http.ResponseWriter, r *http.Request) {
	accountID, _ := h.accountFromRequest(r)
	if accountID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "auth_required")
		return
	}

	var req linkSessionsRequest
	// The anonymous token may ride in the header instead of the body.
	_ = decodeJSON(r, &req)
	anonymousID := anonymousIDFromRequest(r, req.AnonymousID)
	if anonymousID == "" {
		writeError(w, http.StatusBadRequest, "missing_anonymous_id")
		return
	}

	moved, err := h.store.LinkAnonymousSessions(r.Context(), accountID, anonymousID)
	if err != nil {
		h.logger.Error("link sessions failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "link_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"moved": moved})
}
