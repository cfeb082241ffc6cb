package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewMetricsUsesPrivateRegistry(t *testing.T) {
	// Two collectors must not collide on registration
	a := NewMetrics()
	b := NewMetrics()

	a.RecordJob("success")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.JobsTotal.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.JobsTotal.WithLabelValues("success")))
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	metrics := NewMetrics()

	router := gin.New()
	router.Use(Middleware(metrics))
	router.GET("/files/:name", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/files/a", "/files/b", "/missing"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/files/:name", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestTimerObservesStage(t *testing.T) {
	metrics := NewMetrics()

	timer := NewTimer(metrics, "crawl")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop("success")

	assert.Greater(t, elapsed, time.Duration(0))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.StageDuration))
}

func TestNilMetricsTimer(t *testing.T) {
	timer := NewTimer(nil, "archive")
	assert.NotPanics(t, func() { timer.Stop("failure") })
}

func TestHandlerExposesMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordArchive(4096, 3)
	metrics.RecordFetch("recursive", "ok")

	srv := httptest.NewServer(metrics.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "sitepack_archive_bytes")
	assert.Contains(t, string(body), `sitepack_fetch_requests_total{policy="recursive",result="ok"} 1`)
	assert.Contains(t, string(body), "sitepack_uptime_seconds")
}
