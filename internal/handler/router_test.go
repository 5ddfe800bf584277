package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rapport/backend/internal/metrics"
	"github.com/zhouzirui/rapport/backend/internal/middleware"
	"github.com/zhouzirui/rapport/backend/internal/model/persona"
	"github.com/zhouzirui/rapport/backend/internal/service/assistant"
)

func newTestRouter(limiter *middleware.RateLimiter) http.Handler {
	reg := prometheus.NewRegistry()
	engine := assistant.New(assistant.Options{Metrics: metrics.New(reg)})
	return NewRouter(Deps{
		Engine:      engine,
		Personas:    persona.NewMemoryStore(persona.Seed()),
		Gatherer:    reg,
		RateLimiter: limiter,
	})
}

func TestHealth(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var health assistant.Health
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "memory", health.Backend)
}

func TestBrainStatus(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/brain/status", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":"aria"`)
}

func TestMetricsAfterChat(t *testing.T) {
	r := newTestRouter(nil)

	body, _ := json.Marshal(map[string]string{"message": "let's make a game", "user_id": "u1"})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "rapport_messages_processed_total")
}

func TestAPIRateLimited(t *testing.T) {
	r := newTestRouter(middleware.NewRateLimiter(0.001, 1))

	call := func(path string) int {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		return resp.Code
	}

	assert.Equal(t, http.StatusOK, call("/api/personas"))
	assert.Equal(t, http.StatusTooManyRequests, call("/api/personas"))
	assert.Equal(t, http.StatusOK, call("/health"))
}
