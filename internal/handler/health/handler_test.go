package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	promhandler "github.com/jwalitptl/therapy-scheduler/internal/handler/prometheus"
	"github.com/jwalitptl/therapy-scheduler/pkg/metrics"
)

type pinger struct {
	err error
}

func (p pinger) PingContext(context.Context) error { return p.err }

func newEngine(db Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")
	metricsH := promhandler.New(reg, m)

	engine := gin.New()
	engine.Use(metricsH.Middleware())
	NewHandler(db, metricsH.Handler()).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := get(newEngine(pinger{err: errors.New("down")}), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())
}

func TestReadiness(t *testing.T) {
	w := get(newEngine(pinger{}), "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(newEngine(pinger{err: errors.New("connection refused")}), "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "DOWN")
}

func TestMetricsExposeRequestCounters(t *testing.T) {
	engine := newEngine(pinger{})
	get(engine, "/api/v1/health/live")

	w := get(engine, "/api/v1/health/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",path="/api/v1/health/live",status="200"} 1`)
}
