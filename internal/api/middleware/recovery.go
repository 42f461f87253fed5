package middleware

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/personium/personium-engine/internal/domain/engine"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
)

// Recovery turns a handler panic into the plain-text 500 failure response.
func Recovery(log *logging.Logger) gin.HandlerFunc {
	if log == nil {
		log = logging.NewNop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("handler panic",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		if c.Writer.Written() {
			c.Abort()
			return
		}
		err := &engine.ServerError{Message: engine.InternalMessage, Cause: fmt.Errorf("panic: %v", recovered)}
		body := engine.FailureBody(err)
		c.Header("Content-Length", strconv.Itoa(len(body)))
		c.Data(engine.StatusCode(err), "text/plain; charset=utf-8", []byte(body))
		c.Abort()
	})
}
