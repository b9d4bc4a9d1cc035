package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWebhookDispatcher_DeliversPayloadShape(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultWebhookConfig()
	cfg.URLs = []string{srv.URL}
	cfg.MaxAttempts = 1
	d := NewWebhookDispatcher(cfg, discardLogger(), nil)

	d.Enqueue(models.Event{Kind: models.EventSignalLost, Timestamp: time.Now(), Payload: map[string]string{"camera_id": "cam1"}})
	require.NoError(t, d.Wait(contextWithTimeout(t)))

	assert.Equal(t, models.EventSignalLost, received.Event)
	assert.NotEmpty(t, received.Timestamp)
}

func TestWebhookDispatcher_RetriesOnFailureThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultWebhookConfig()
	cfg.URLs = []string{srv.URL}
	cfg.MaxAttempts = 5
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	d := NewWebhookDispatcher(cfg, discardLogger(), nil)

	d.Enqueue(models.Event{Kind: models.EventRecordingStarted, Timestamp: time.Now()})
	require.NoError(t, d.Wait(contextWithTimeout(t)))

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestWebhookDispatcher_ExhaustedDeliveryIsDeadLettered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	sandbox, err := storage.NewSandbox(dir)
	require.NoError(t, err)

	cfg := DefaultWebhookConfig()
	cfg.URLs = []string{srv.URL}
	cfg.MaxAttempts = 2
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	d := NewWebhookDispatcher(cfg, discardLogger(), sandbox)

	d.Enqueue(models.Event{Kind: models.EventDiskLow, Timestamp: time.Now()})
	require.NoError(t, d.Wait(contextWithTimeout(t)))

	entries, err := sandbox.List("webhooks/deadletter")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWebhookDispatcher_EnqueueWithNoURLsIsANoop(t *testing.T) {
	d := NewWebhookDispatcher(DefaultWebhookConfig(), discardLogger(), nil)
	d.Enqueue(models.Event{Kind: models.EventSignalLost, Timestamp: time.Now()})
	require.NoError(t, d.Wait(contextWithTimeout(t)))
}

func contextWithTimeout(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
