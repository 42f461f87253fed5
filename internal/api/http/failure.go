package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/personium/personium-engine/internal/domain/engine"
)

// ContentTypeText is the content type of every failure response.
const ContentTypeText = "text/plain; charset=utf-8"

// writeFailure maps err to a 404, 500 or 503 plain-text response with an
// explicit Content-Length.
func writeFailure(c *gin.Context, err error) {
	status := engine.StatusCode(err)
	body := engine.FailureBody(err)
	c.Header("Content-Length", strconv.Itoa(len(body)))
	c.Data(status, ContentTypeText, []byte(body))
	c.Abort()
}
