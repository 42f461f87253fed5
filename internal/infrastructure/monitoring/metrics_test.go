package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CacheLookup("user", true)
	m.CacheLookup("user", false)
	m.CacheLookup("user", false)
	m.ExtensionLoaded(true)
	m.ExtensionLoaded(false)
	m.RecordBridgeCall("GET", "200")

	NewTimer(m, "service").Stop(OutcomeTimedOut)
	var nilTimer *Timer
	nilTimer.Stop(OutcomeCompleted)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("user", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("user", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtensionsLoaded.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues(OutcomeTimedOut)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BridgeCalls.WithLabelValues("GET", "200")))

	m.ContextOpened()
	m.ContextOpened()
	m.ContextClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveContexts))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(Handler(reg)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "200")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "engine_http_requests_total"))
	assert.True(t, strings.Contains(body, "engine_uptime_seconds"))
}
