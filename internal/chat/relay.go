// Package chat relays conversations to the upstream assistant API over SSE,
// enriching each exchange with the caller's practice digest.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shuren-app/shuren/internal/model"
)

// keepaliveInterval paces the comment pings that hold the client connection
// open while the upstream thinks.
const keepaliveInterval = 15 * time.Second

// Summarizer builds the practice digest injected into the conversation
// inputs. A nil digest means the conversation proceeds without context.
type Summarizer interface {
	Summarize(ctx context.Context, accountID uuid.UUID) *model.UserSummary
}

// Config holds upstream connection settings.
type Config struct {
	UpstreamURL string
	APIKey      string
}

// Request is one relayed conversation turn. UID is the client's self-reported
// identifier; it only ever feeds the upstream user tag, never data selection.
type Request struct {
	Message        string
	ConversationID string
	Inputs         map[string]any
	UID            string
	AccountID      uuid.UUID // uuid.Nil for anonymous callers.
}

// Relay proxies chat turns to the upstream assistant and streams the SSE
// response back verbatim.
type Relay struct {
	upstreamURL string
	apiKey      string
	client      *http.Client
	summaries   Summarizer
	logger      *slog.Logger
}

// New creates a relay. The upstream URL may be empty, in which case
// Enabled reports false and the handler layer refuses chat requests.
func New(cfg Config, summaries Summarizer, logger *slog.Logger) *Relay {
	return &Relay{
		upstreamURL: cfg.UpstreamURL,
		apiKey:      cfg.APIKey,
		client:      &http.Client{}, // No overall timeout: streams run as long as the upstream talks.
		summaries:   summaries,
		logger:      logger,
	}
}

// Enabled returns true if an upstream is configured.
func (rl *Relay) Enabled() bool { return rl.upstreamURL != "" }

// BuildInputs merges the caller's inputs with the practice digest. Keys the
// caller supplied are kept as-is, including user_summary.
func (rl *Relay) BuildInputs(ctx context.Context, req Request) map[string]any {
	inputs := make(map[string]any, len(req.Inputs)+1)
	if req.AccountID != uuid.Nil {
		if summary := rl.summaries.Summarize(ctx, req.AccountID); summary != nil {
			inputs["user_summary"] = summary
		}
	}
	for k, v := range req.Inputs {
		inputs[k] = v
	}
	return inputs
}

type upstreamPayload struct {
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
	User           string         `json:"user"`
}

// Stream opens an SSE response toward the client, forwards the turn to the
// upstream, and pipes the upstream's SSE bytes back unchanged. Comment pings
// flow every 15 seconds from the moment the stream opens so slow upstream
// starts don't drop the client. Errors after the stream opens surface as an
// SSE error event since the status line is already gone.
func (rl *Relay) Stream(w http.ResponseWriter, r *http.Request, req Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived connection. If the
	// deadline cannot be reached the stream still runs, it just dies at the
	// server timeout, so log loudly instead of failing the turn.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		rl.logger.Warn("chat: failed to clear write deadline, stream may be cut short", "error", err)
	}

	var mu sync.Mutex
	write := func(p []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if _, err := w.Write(p); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ctx := r.Context()
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := write([]byte(": ping\n\n")); err != nil {
					return
				}
			}
		}
	}()

	user := req.AccountID.String()
	if req.AccountID == uuid.Nil {
		user = req.UID
		if user == "" {
			user = req.ConversationID
		}
		if user == "" {
			user = "anon"
		}
	}

	payload := upstreamPayload{
		Query:          req.Message,
		Inputs:         rl.BuildInputs(ctx, req),
		ResponseMode:   "streaming",
		ConversationID: req.ConversationID,
		User:           user,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		rl.writeErrorEvent(write, map[string]any{"error": err.Error()})
		return
	}

	upReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rl.upstreamURL+"/v1/chat-messages", bytes.NewReader(body))
	if err != nil {
		rl.writeErrorEvent(write, map[string]any{"error": err.Error()})
		return
	}
	upReq.Header.Set("Authorization", "Bearer "+rl.apiKey)
	upReq.Header.Set("Content-Type", "application/json")

	resp, err := rl.client.Do(upReq)
	if err != nil {
		rl.writeErrorEvent(write, map[string]any{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		rl.writeErrorEvent(write, map[string]any{"status": resp.StatusCode, "text": string(text)})
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if werr := write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				rl.logger.Warn("chat: upstream stream ended abnormally", "error", err)
			}
			return
		}
	}
}

func (rl *Relay) writeErrorEvent(write func([]byte) error, detail map[string]any) {
	data, err := json.Marshal(detail)
	if err != nil {
		data = []byte(`{"error":"internal"}`)
	}
	_ = write(fmt.Appendf(nil, "event: error\ndata: %s\n\n", data))
}
