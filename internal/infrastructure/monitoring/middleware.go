package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for request metrics. Routes are
// labelled by their registered pattern to keep cardinality bounded.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one script execution.
type Timer struct {
	start   time.Time
	metrics *Metrics
	kind    string
}

// NewTimer starts a timer for a service of the given kind.
func NewTimer(metrics *Metrics, kind string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		kind:    kind,
	}
}

// Stop records the execution with its outcome.
func (t *Timer) Stop(outcome string) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.RecordExecution(t.kind, outcome, time.Since(t.start))
}
