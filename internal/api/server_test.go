package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/internal/metrics"
	"github.com/pdq-signal-server/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubConfig struct {
	cfg *domain.Config
}

func (s *stubConfig) GetConfig() *domain.Config                 { return s.cfg }
func (s *stubConfig) GetDatabaseConfig() *domain.DatabaseConfig { return &s.cfg.Database }
func (s *stubConfig) GetServerConfig() *domain.ServerConfig     { return &s.cfg.Server }
func (s *stubConfig) GetAnalysisConfig() domain.AnalysisConfig  { return s.cfg.Analysis }
func (s *stubConfig) Reload() error                             { return nil }
func (s *stubConfig) Validate() error                           { return nil }
func (s *stubConfig) GetDatabaseConnectionString() string       { return "" }
func (s *stubConfig) GetDatabaseURL() string                    { return "" }
func (s *stubConfig) IsProduction() bool                        { return false }
func (s *stubConfig) IsDevelopment() bool                       { return true }

type fakeAnalyzer struct {
	err       error
	refreshes int
}

func (f *fakeAnalyzer) SourceName() string { return "fake" }

func (f *fakeAnalyzer) Dashboard(context.Context) (*domain.Dashboard, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Dashboard{
		RunID:  fmt.Sprintf("run-%d", f.refreshes),
		Source: "fake",
		CapaCandidates: domain.CapaSection{
			Title:      "CAPA Candidates",
			Candidates: []domain.CapaCandidate{{DrugName: "ASPIRIN", PreferredTerm: "Nausea", Count: 6}},
		},
	}, nil
}

func (f *fakeAnalyzer) Section(ctx context.Context, name string) (interface{}, error) {
	d, err := f.Dashboard(ctx)
	if err != nil {
		return nil, err
	}
	return d.Section(name)
}

func (f *fakeAnalyzer) Refresh(context.Context) (*service.Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.refreshes++
	return nil, nil
}

func newTestServer(t *testing.T, analyzer Analyzer, rateLimit bool) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &domain.Config{
		Server: domain.ServerConfig{RequestTimeout: time.Second, EnableMetrics: true},
		MCP:    domain.MCPConfig{ServerVersion: "1.0.0"},
		RateLimit: domain.RateLimitConfig{
			Enabled:           rateLimit,
			RequestsPerSecond: 0.001,
			Burst:             1,
		},
		Logging: domain.LoggingConfig{Level: "info"},
	}
	return NewServer(&stubConfig{cfg: cfg}, analyzer, metrics.New(), logger)
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{}, false)
	w := do(s, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "fake", body["source"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestServer_Dashboard(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{}, false)
	w := do(s, http.MethodGet, "/api/v1/dashboard")

	require.Equal(t, http.StatusOK, w.Code)
	var d domain.Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "fake", d.Source)
	require.Len(t, d.CapaCandidates.Candidates, 1)
	assert.Equal(t, 6, d.CapaCandidates.Candidates[0].Count)
}

func TestServer_Section(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{}, false)

	w := do(s, http.MethodGet, "/api/v1/sections/capa_candidates")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ASPIRIN")

	w = do(s, http.MethodGet, "/api/v1/sections/bogus")
	require.Equal(t, http.StatusNotFound, w.Code)
	var pdqErr domain.PDQError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pdqErr))
	assert.Equal(t, domain.ErrNotFoundCode, pdqErr.Code)
	assert.Equal(t, w.Header().Get("X-Correlation-ID"), pdqErr.RequestID)
}

func TestServer_Refresh(t *testing.T) {
	a := &fakeAnalyzer{}
	s := newTestServer(t, a, false)

	w := do(s, http.MethodPost, "/api/v1/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, a.refreshes)
	assert.Contains(t, w.Body.String(), `"run_id":"run-1"`)

	w = do(s, http.MethodGet, "/api/v1/refresh")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"load failure", fmt.Errorf("load x: %w: %w", domain.ErrSourceLoad, errors.New("boom")), http.StatusBadGateway, domain.ErrSourceError},
		{"breaker open", fmt.Errorf("load x: %w", domain.ErrUnavailable), http.StatusServiceUnavailable, domain.ErrSourceError},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, domain.ErrSourceError},
		{"analysis", errors.New("stage failed"), http.StatusInternalServerError, domain.ErrInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeAnalyzer{err: tt.err}, false)
			w := do(s, http.MethodGet, "/api/v1/dashboard")

			assert.Equal(t, tt.status, w.Code)
			var pdqErr domain.PDQError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pdqErr))
			assert.Equal(t, tt.code, pdqErr.Code)
			assert.Equal(t, tt.err.Error(), pdqErr.Details)
		})
	}
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{}, true)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/v1/dashboard").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/api/v1/dashboard").Code)
	// health and metrics are not limited
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health").Code)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{}, false)
	do(s, http.MethodGet, "/api/v1/dashboard")

	w := do(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pdq_http_requests_total{method="GET",path="/api/v1/dashboard",status_code="200"} 1`)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{}, false)
	w := do(s, http.MethodOptions, "/api/v1/dashboard")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_StartStops(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{}, false)
	s.configManager.GetServerConfig().Host = "127.0.0.1"
	s.configManager.GetServerConfig().Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
