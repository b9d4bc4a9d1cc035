package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/storage"
	"github.com/embedops/mediacore/pkg/httpclient"
)

// webhookPayload is the on-the-wire shape required by §6.4: event kind,
// ISO8601 timestamp, and the event's own payload. Clients are expected to be
// idempotent on the (event, timestamp, primary-key-in-payload) triple.
type webhookPayload struct {
	Event     models.EventKind `json:"event"`
	Timestamp string           `json:"timestamp"`
	Payload   any              `json:"payload"`
}

// WebhookConfig parameterizes delivery retry/backoff and dead-letter
// capacity.
type WebhookConfig struct {
	URLs           []string
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
	DeadLetterCap  int
}

// DefaultWebhookConfig matches §5's 5s webhook-delivery default timeout and a
// modest capped-retry/backoff policy.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		RequestTimeout: 5 * time.Second,
		DeadLetterCap:  500,
	}
}

// WebhookDispatcher delivers bus events to registered HTTP endpoints
// at-least-once, with exponential backoff and jitter, and a bounded
// on-disk dead-letter queue for deliveries that exhaust their attempts.
// Enqueue never blocks the caller: every delivery runs on its own goroutine.
type WebhookDispatcher struct {
	cfg     WebhookConfig
	client  *httpclient.Client
	logger  *slog.Logger
	sandbox *storage.Sandbox

	mu      sync.Mutex
	wg      sync.WaitGroup
	inFlight int
}

// NewWebhookDispatcher builds a dispatcher. sandbox roots the dead-letter
// queue; pass nil to disable persistence (failed deliveries are then only
// logged).
func NewWebhookDispatcher(cfg WebhookConfig, logger *slog.Logger, sandbox *storage.Sandbox) *WebhookDispatcher {
	return &WebhookDispatcher{
		cfg: cfg,
		client: httpclient.New(httpclient.Config{
			Timeout:       cfg.RequestTimeout,
			RetryAttempts: 0, // this dispatcher owns its own retry/backoff loop
		}),
		logger:  logger,
		sandbox: sandbox,
	}
}

// Enqueue starts an asynchronous delivery of evt to every configured URL.
// Returns immediately; the bus MUST NOT block on a slow webhook consumer.
func (d *WebhookDispatcher) Enqueue(evt models.Event) {
	if len(d.cfg.URLs) == 0 {
		return
	}

	body, err := json.Marshal(webhookPayload{
		Event:     evt.Kind,
		Timestamp: evt.Timestamp.Format(time.RFC3339Nano),
		Payload:   evt.Payload,
	})
	if err != nil {
		d.logger.Error("marshal webhook payload", "event", evt.Kind, "error", err)
		return
	}

	for _, url := range d.cfg.URLs {
		d.mu.Lock()
		d.inFlight++
		d.mu.Unlock()
		d.wg.Add(1)
		go d.deliver(url, evt.Kind, body)
	}
}

func (d *WebhookDispatcher) deliver(url string, kind models.EventKind, body []byte) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	delay := d.cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.RequestTimeout)
		err := d.attempt(ctx, url, body)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		d.logger.Warn("webhook delivery attempt failed",
			"url", url, "event", kind, "attempt", attempt, "error", err)

		if attempt == d.cfg.MaxAttempts {
			break
		}
		time.Sleep(jittered(delay))
		delay *= 2
		if delay > d.cfg.MaxDelay {
			delay = d.cfg.MaxDelay
		}
	}

	d.logger.Error("webhook delivery exhausted retries, dead-lettering",
		"url", url, "event", kind, "error", lastErr)
	d.deadLetter(url, kind, body, lastErr)
}

func (d *WebhookDispatcher) attempt(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.DoWithContext(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// jittered returns d scaled by a uniform random factor in [0.8, 1.2], per
// the exponential-backoff-with-jitter requirement in §4.9/§6.4.
func jittered(d time.Duration) time.Duration {
	factor := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * factor)
}

// deadLetterEntry is the on-disk record for an exhausted delivery.
type deadLetterEntry struct {
	URL       string          `json:"url"`
	Event     models.EventKind `json:"event"`
	Body      json.RawMessage `json:"body"`
	LastError string          `json:"last_error"`
	FailedAt  time.Time       `json:"failed_at"`
}

func (d *WebhookDispatcher) deadLetter(url string, kind models.EventKind, body []byte, lastErr error) {
	if d.sandbox == nil {
		return
	}

	entries, _ := d.sandbox.List("webhooks/deadletter")
	if len(entries) >= d.cfg.DeadLetterCap {
		// Bounded queue: drop the oldest entry to make room. Directory
		// listing order from the OS is not guaranteed sorted, but entry
		// names are prefixed with a fixed-width UnixNano timestamp (see
		// below) so a lexicographic min is the oldest.
		oldest := entries[0].Name()
		for _, e := range entries[1:] {
			if e.Name() < oldest {
				oldest = e.Name()
			}
		}
		_ = d.sandbox.Remove("webhooks/deadletter/" + oldest)
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	entry := deadLetterEntry{
		URL:       url,
		Event:     kind,
		Body:      json.RawMessage(body),
		LastError: errMsg,
		FailedAt:  time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		d.logger.Error("marshal dead-letter entry", "error", err)
		return
	}

	name := fmt.Sprintf("webhooks/deadletter/%d_%s.json", time.Now().UnixNano(), sanitizeEventForFilename(kind))
	if err := d.sandbox.AtomicWrite(name, data); err != nil {
		d.logger.Error("persist dead-letter entry", "error", err)
	}
}

func sanitizeEventForFilename(kind models.EventKind) string {
	out := make([]byte, 0, len(kind))
	for _, r := range string(kind) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// Wait blocks until every in-flight delivery completes or ctx is done.
// Used during graceful shutdown.
func (d *WebhookDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
