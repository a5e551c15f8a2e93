package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(slog.New(slog.DiscardHandler), panicking)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
}

func TestBodyLimitMiddleware(t *testing.T) {
	var readErr error
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for {
			if _, err := r.Body.Read(buf); err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = err
				}
				break
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := bodyLimitMiddleware(16, echo)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 64))))
	assert.Error(t, readErr)

	readErr = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader("tiny")))
	assert.NoError(t, readErr)
}

func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	// httptest.ResponseRecorder implements http.Flusher.
	var h http.ResponseWriter = w
	f, ok := h.(http.Flusher)
	require.True(t, ok)
	f.Flush()
	assert.True(t, rec.Flushed)
}

// deadlineWriter records write-deadline calls the way the real connection
// writer would accept them.
type deadlineWriter struct {
	*httptest.ResponseRecorder
	deadline time.Time
	calls    int
}

func (w *deadlineWriter) SetWriteDeadline(deadline time.Time) error {
	w.deadline = deadline
	w.calls++
	return nil
}

func TestStatusWriterUnwrapsToConnection(t *testing.T) {
	dw := &deadlineWriter{ResponseRecorder: httptest.NewRecorder()}

	// Both the logging and tracing wrappers sit between a stream handler and
	// the connection, so the deadline has to pass through two layers.
	inner := &statusWriter{ResponseWriter: dw, statusCode: http.StatusOK}
	outer := &statusWriter{ResponseWriter: inner, statusCode: http.StatusOK}

	rc := http.NewResponseController(outer)
	require.NoError(t, rc.SetWriteDeadline(time.Time{}))
	assert.Equal(t, 1, dw.calls)
	assert.True(t, dw.deadline.IsZero())
}

func TestStreamSurvivesServerWriteTimeout(t *testing.T) {
	const ticks = 6

	deadlineErr := make(chan error, 1)
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadlineErr <- http.NewResponseController(w).SetWriteDeadline(time.Time{})
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < ticks; i++ {
			if _, err := w.Write([]byte("data: tick\n\n")); err != nil {
				return
			}
			flusher.Flush()
			time.Sleep(100 * time.Millisecond)
		}
	})

	logger := slog.New(slog.DiscardHandler)
	srv := httptest.NewUnstartedServer(tracingMiddleware(loggingMiddleware(logger, stream)))
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The stream outlasts WriteTimeout several times over; every tick must
	// arrive intact.
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, <-deadlineErr)
	assert.Equal(t, ticks, strings.Count(string(body), "data: tick"))
}
