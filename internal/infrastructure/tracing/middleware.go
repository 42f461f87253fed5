package tracing

import (
	"github.com/gin-gonic/gin"

	"github.com/personium/personium-engine/internal/shared/id"
)

// HTTPMiddleware assigns the request ID and records a span per request.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if rid, ok := id.ParseRequestID(c.GetHeader(HeaderRequestID)); ok {
			ctx = WithRequestID(ctx, rid)
		}

		span, ctx := tracer.StartSpan(ctx, c.FullPath())
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, span.RequestID.String())

		c.Next()

		span.Status = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.Err = c.Errors.Last()
		}
		span.Finish()
		tracer.Submit(span)
	}
}
