package server

import (
	"net/http"

	"github.com/shuren-app/shuren/internal/chat"
)

type chatRequest struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id"`
	Inputs         map[string]any `json:"inputs"`
	UID            string         `json:"uid"`
}

// HandleChat handles POST /api/chat: relays the message to the conversational
// upstream and streams the SSE response back verbatim. The analytics digest is
// attached only for verified bearer identities; client-supplied identifiers
// never select another account's data.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil || !h.relay.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "chat_not_configured")
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message")
		return
	}

	accountID, _ := h.accountFromRequest(r)
	h.relay.Stream(w, r, chat.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Inputs:         req.Inputs,
		UID:            req.UID,
		AccountID:      accountID,
	})
}
