package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/pkg/admin"
	"github.com/llmrelay/llmrelay/pkg/cache"
	"github.com/llmrelay/llmrelay/pkg/config"
	"github.com/llmrelay/llmrelay/pkg/dispatch"
	"github.com/llmrelay/llmrelay/pkg/proxy"
	"github.com/llmrelay/llmrelay/pkg/session"
)

func newTestServer(t *testing.T) (*Server, *config.Store) {
	t.Helper()
	store, err := config.Open(filepath.Join(t.TempDir(), "settings.json"), "")
	require.NoError(t, err)

	respCache := cache.New(16, time.Minute)
	queue := dispatch.New(3, time.Millisecond)
	p := proxy.New(store, respCache, queue, proxy.NewStats())
	sessions := session.NewStore(time.Hour)
	adminHandler := admin.NewHandler(store, sessions, func(r *http.Request) interface{} {
		return map[string]bool{"connected": false}
	})

	return New(store, p, adminHandler, respCache, queue), store
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out["status"])
	assert.Contains(t, out, "uptime")
	assert.Contains(t, out, "timestamp")
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out, "requests")
	assert.Contains(t, out, "cache")
	assert.Contains(t, out, "queue")
}

func TestBodyLimitEnforced(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.Update(func(s *config.Settings) error {
		s.MaxBodyBytes = 64
		return nil
	})
	require.NoError(t, err)

	body := `{"max_tokens":1024,"messages":[{"role":"user","content":"` + strings.Repeat("x", 256) + `"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+store.Get().LocalAPIKey)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAdminUIServed(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "llmrelay")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
