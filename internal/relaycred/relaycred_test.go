package relaycred

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredential(t *testing.T, w http.ResponseWriter, expiresIn time.Duration) {
	t.Helper()
	resp := wireResponse{
		ICEServers: []struct {
			URLs       []string `json:"urls"`
			Username   string   `json:"username"`
			Credential string   `json:"credential"`
		}{
			{URLs: []string{"turn:relay.example:3478"}, Username: "u", Credential: "p"},
		},
		ExpiresAt: time.Now().Add(expiresIn),
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestCache_StartFetchesInitialCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCredential(t, w, time.Hour)
	}))
	defer server.Close()

	cache := New(server.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache.Start(ctx)

	cred, ok := cache.Get()
	require.True(t, ok)
	require.Len(t, cred.ICEServers, 1)
	assert.Equal(t, "turn:relay.example:3478", cred.ICEServers[0].URLs[0])

	degraded, _ := cache.Degraded()
	assert.False(t, degraded)
}

func TestCache_DegradedOnFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cache := New(server.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache.Start(ctx)

	_, ok := cache.Get()
	assert.False(t, ok)

	degraded, reason := cache.Degraded()
	assert.True(t, degraded)
	assert.NotEmpty(t, reason)
}

func TestCache_GetReportsExpiredCredentialAsUnavailable(t *testing.T) {
	cache := &Cache{
		current: &Credential{ExpiresAt: time.Now().Add(-time.Minute)},
	}

	_, ok := cache.Get()
	assert.False(t, ok)
}

func TestCache_NextDelayRespectsJitterBounds(t *testing.T) {
	cache := &Cache{
		current: &Credential{ExpiresAt: time.Now().Add(100 * time.Second)},
	}

	delay := cache.nextDelay()
	assert.GreaterOrEqual(t, delay, 60*time.Second)
	assert.LessOrEqual(t, delay, 100*time.Second)
}
