package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personium/personium-engine/internal/infrastructure/config"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/infrastructure/tracing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Extension.Dir = filepath.Join(t.TempDir(), "none")
	cfg.RateLimit.Enabled = false

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello"), []byte(`function(request) {
  return {status: 200, headers: {"Content-Type": "text/plain"}, body: ["hello " + _p.context.serviceSubject]};
}`), 0o644))
	cfg.Source.TestDir = dir
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := newServer(cfg, logging.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Baseurl", "https://unit.example/")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	w := get(s, "/cell1/box1/test/hello")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "hello engine", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(tracing.HeaderRequestID))

	w = get(s, "/cell1/box1/test/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "404 Not Found", w.Body.String())

	w = get(s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"extensions":1`)

	w = get(s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "engine_script_executions_total")
	assert.Contains(t, w.Body.String(), "engine_http_requests_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestServerDebugRouteFollowsDevelopmentMode(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(t, cfg)
	assert.Equal(t, http.StatusNotFound, get(s, "/debug/hello").Code)

	cfg = testConfig(t)
	cfg.Logging.Development = true
	s = newTestServer(t, cfg)
	w := get(s, "/debug/hello")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello engine", w.Body.String())
}

func TestServerRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 1}
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, get(s, "/healthz").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(s, "/healthz").Code)
}

func TestServerShortSecretKeyFailsPerRequest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.TokenSecretKey = "short"
	s := newTestServer(t, cfg)

	w := get(s, "/cell1/box1/test/hello")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server Error : internal error", w.Body.String())
}

func TestNewServerRejectsBadLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "loud"
	_, err := NewServer(cfg)
	assert.Error(t, err)
}
