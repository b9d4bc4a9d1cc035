// Package relaycred caches signed media-relay credentials fetched from an
// external HTTPS endpoint, per §6.5. Credentials are held until their
// expires_at timestamp and refreshed ahead of expiry with jitter so that many
// colocated units don't all hammer the credential service at the same
// instant. A fetch failure degrades the cached capability rather than
// failing whatever operation asked for it.
package relaycred

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/embedops/mediacore/pkg/httpclient"
)

// refreshFraction and refreshJitter implement the "80% of TTL ± 10%" rule:
// the cache schedules its next fetch at a point uniformly distributed
// between 72% and 88% (0.80 × (1 ± 0.10)) of the credential's remaining
// lifetime.
const (
	refreshFraction = 0.80
	refreshJitter   = 0.10
)

// Credential is the cached relay credential shape. ICEServers re-exports
// pion/webrtc's native server-list type so API clients get a TURN/STUN
// config they can hand straight to a peer connection without translation.
type Credential struct {
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

func (c *Credential) expired(now time.Time) bool {
	return c == nil || !now.Before(c.ExpiresAt)
}

// wireResponse is the shape returned by the credential endpoint.
type wireResponse struct {
	ICEServers []struct {
		URLs       []string `json:"urls"`
		Username   string   `json:"username"`
		Credential string   `json:"credential"`
	} `json:"ice_servers"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache holds the current credential and refreshes it in the background.
// Get never blocks on the network: it returns the last good credential (if
// any) and a degraded flag when the cache has nothing fresh to offer.
type Cache struct {
	endpoint string
	client   *httpclient.Client
	logger   *slog.Logger

	mu        sync.RWMutex
	current   *Credential
	lastError error
}

// New constructs a Cache against the given credential-service endpoint. The
// returned Cache has no credential until Start's first fetch completes.
func New(endpoint string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		endpoint: endpoint,
		client:   httpclient.NewWithDefaults(),
		logger:   logger.With(slog.String("component", "relaycred")),
	}
}

// Start fetches an initial credential and then loops, refreshing each
// credential at a jittered point before its expiry, until ctx is canceled.
// Start returns once the first fetch attempt completes (success or failure)
// so callers can log the initial state; the refresh loop continues in the
// background.
func (c *Cache) Start(ctx context.Context) {
	c.refresh(ctx)

	go func() {
		for {
			delay := c.nextDelay()
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				c.refresh(ctx)
			}
		}
	}()
}

// nextDelay computes the jittered refresh interval from the currently
// cached credential. With no credential cached yet it retries quickly.
func (c *Cache) nextDelay() time.Duration {
	c.mu.RLock()
	cur := c.current
	c.mu.RUnlock()

	if cur == nil {
		return 5 * time.Second
	}

	remaining := time.Until(cur.ExpiresAt)
	if remaining <= 0 {
		return time.Second
	}

	jitter := 1.0 + (rand.Float64()*2-1)*refreshJitter
	delay := time.Duration(float64(remaining) * refreshFraction * jitter)
	if delay < time.Second {
		delay = time.Second
	}
	return delay
}

// refresh performs one fetch attempt and swaps in the result on success.
func (c *Cache) refresh(ctx context.Context) {
	cred, err := c.fetch(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastError = err
		c.logger.Warn("relay credential fetch failed, serving degraded/stale",
			slog.String("error", err.Error()))
		return
	}

	c.lastError = nil
	c.current = cred
	c.logger.Info("relay credential refreshed", slog.Time("expires_at", cred.ExpiresAt))
}

func (c *Cache) fetch(ctx context.Context) (*Credential, error) {
	resp, err := c.client.Get(ctx, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching relay credential: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("relay credential endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding relay credential response: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(wire.ICEServers))
	for _, s := range wire.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return &Credential{ICEServers: servers, ExpiresAt: wire.ExpiresAt}, nil
}

// Get returns the current credential. ok is false when the cache has never
// fetched successfully or the cached credential has expired in the
// background (refresh in flight or degraded) — callers should treat this as
// "relay delivery unavailable", not a fatal error.
func (c *Cache) Get() (cred *Credential, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current.expired(time.Now()) {
		return nil, false
	}
	return c.current, true
}

// Degraded reports whether the most recent fetch attempt failed. The cache
// may still be serving a stale-but-unexpired credential while degraded.
func (c *Cache) Degraded() (degraded bool, reason string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastError == nil {
		return false, ""
	}
	return true, c.lastError.Error()
}
