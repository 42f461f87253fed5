package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/personium/personium-engine/internal/shared/id"
)

func TestStartSpanGeneratesRequestID(t *testing.T) {
	tracer := New("engine", zap.NewNop())
	defer tracer.Close()

	span, ctx := tracer.StartSpan(context.Background(), "op")
	require.NotEmpty(t, span.RequestID)
	assert.Equal(t, span.RequestID, RequestID(ctx))

	again, _ := tracer.StartSpan(ctx, "child")
	assert.Equal(t, span.RequestID, again.RequestID)

	span.SetTag("k", "v")
	span.Finish()
	tracer.Submit(span)
}

func TestInject(t *testing.T) {
	headers := map[string]string{}
	Inject(context.Background(), headers)
	assert.Empty(t, headers)

	ctx := WithRequestID(context.Background(), "req_x")
	Inject(ctx, headers)
	assert.Equal(t, "req_x", headers[HeaderRequestID])
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("engine", zap.NewNop())
	defer tracer.Close()

	var seen id.RequestID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/x", func(c *gin.Context) {
		seen = RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen.String(), w.Header().Get(HeaderRequestID))

	supplied := id.NewRequestID()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, supplied.String())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, supplied, seen)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "not-an-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEqual(t, "not-an-id", seen.String())
}

func TestCloseIsIdempotent(t *testing.T) {
	tracer := New("engine", zap.NewNop())
	tracer.Close()
	tracer.Close()
}
