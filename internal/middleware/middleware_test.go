package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdq-signal-server/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", okHandler)

	w := perform(r, http.MethodGet, "/", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestCorrelationID(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CorrelationIDKey))
	})

	w := perform(r, http.MethodGet, "/", nil)
	generated := w.Header().Get("X-Correlation-ID")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	w = perform(r, http.MethodGet, "/", map[string]string{"X-Correlation-ID": "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestRequestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationID(), RequestTimeout(10*time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", okHandler)

	w := perform(r, http.MethodGet, "/slow", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "Request timeout")

	w = perform(r, http.MethodGet, "/fast", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(CorrelationID(), AuditLogger(&buf))
	r.GET("/api/v1/dashboard", okHandler)

	perform(r, http.MethodGet, "/api/v1/dashboard", map[string]string{
		"X-Correlation-ID": "run-1",
		"User-Agent":       `agent "quoted"`,
	})

	var entry auditEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry.CorrelationID)
	assert.Equal(t, http.MethodGet, entry.Method)
	assert.Equal(t, "/api/v1/dashboard", entry.Path)
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Equal(t, `agent "quoted"`, entry.UserAgent)
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewClientLimiter(0.001, 2)))
	r.GET("/", okHandler)

	first := map[string]string{"X-Forwarded-For": "10.0.0.1"}
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", first).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", first).Code)

	w := perform(r, http.MethodGet, "/", first)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	// buckets are per client
	other := map[string]string{"X-Forwarded-For": "10.0.0.2"}
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", other).Code)
}

func TestClientLimiter_MinimumBurst(t *testing.T) {
	l := NewClientLimiter(0.001, 0)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/v1/sections/:name", okHandler)

	perform(r, http.MethodGet, "/api/v1/sections/capa_candidates", nil)
	perform(r, http.MethodGet, "/api/v1/sections/audit_summary", nil)
	perform(r, http.MethodGet, "/missing", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/sections/:name", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
