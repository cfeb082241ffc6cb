package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
			respSize,
		)
	}
}

// Timer measures the duration of one pipeline stage
type Timer struct {
	start   time.Time
	metrics *Metrics
	stage   string
}

// NewTimer starts timing stage
func NewTimer(metrics *Metrics, stage string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		stage:   stage,
	}
}

// Stop records the elapsed time under status and returns it
func (t *Timer) Stop(status string) time.Duration {
	elapsed := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.StageDuration.WithLabelValues(t.stage, status).Observe(elapsed.Seconds())
	}
	return elapsed
}
