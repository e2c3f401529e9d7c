package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdq-signal-server/internal/cache"
	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/internal/runner"
)

type staticSource struct {
	loads int
	err   error
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Load(context.Context) (*domain.RecordSet, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	term := "Nausea"
	set := &domain.RecordSet{
		Therapies: []domain.RawTherapyInterval{
			{CaseID: "1", CaseRef: "10", StartDate: "20200301", EndDate: "20200201"},
			{CaseID: "2", CaseRef: "20", StartDate: "20200101", EndDate: "20200201"},
		},
	}
	for i := 0; i < 5; i++ {
		set.Drugs = append(set.Drugs, domain.DrugExposure{CaseID: "1", DrugName: "ASPIRIN"})
	}
	set.Reactions = append(set.Reactions, domain.ReactionEvent{CaseID: "1", PreferredTerm: &term})
	return set, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func connect(t *testing.T, src domain.RecordSource) *mcp.ClientSession {
	t.Helper()
	logger := quietLogger()
	r := runner.New(src, domain.DefaultAnalysisConfig(), cache.New(domain.CacheConfig{}), nil, logger)
	s := NewServer(domain.MCPConfig{ServerName: "pdq-test", ServerVersion: "0.0.1"}, r, logger)

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcpServer.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callText(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestServer_ListTools(t *testing.T) {
	session := connect(t, &staticSource{})

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"audit_summary", "capa_candidates", "dashboard", "deviation_tracking",
		"mismatch_analysis", "predictive_modeling", "refresh_analysis",
	}, names)
}

func TestServer_SectionTools(t *testing.T) {
	session := connect(t, &staticSource{})

	text, isErr := callText(t, session, ToolDeviationTracking, map[string]any{})
	require.False(t, isErr)
	var deviations struct {
		Title      string `json:"title"`
		Deviations int    `json:"deviations_found"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &deviations))
	assert.Equal(t, "Deviation Tracking", deviations.Title)
	assert.Equal(t, 1, deviations.Deviations)

	text, isErr = callText(t, session, ToolCapaCandidates, map[string]any{})
	require.False(t, isErr)
	var capa domain.CapaSection
	require.NoError(t, json.Unmarshal([]byte(text), &capa))
	require.Len(t, capa.Candidates, 1)
	assert.Equal(t, domain.CapaCandidate{DrugName: "ASPIRIN", PreferredTerm: "Nausea", Count: 5}, capa.Candidates[0])

	text, isErr = callText(t, session, ToolPredictiveModeling, map[string]any{})
	require.False(t, isErr)
	var modeling domain.ModelingSection
	require.NoError(t, json.Unmarshal([]byte(text), &modeling))
	assert.Equal(t, domain.RiskFailed, modeling.State)
	assert.Empty(t, modeling.Report)
}

func TestServer_DashboardAndRefresh(t *testing.T) {
	src := &staticSource{}
	session := connect(t, src)

	text, isErr := callText(t, session, ToolDashboard, map[string]any{})
	require.False(t, isErr)
	var first map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(text), &first))
	for _, key := range domain.SectionNames {
		assert.Contains(t, first, key)
	}
	assert.Equal(t, 1, src.loads)

	text, isErr = callText(t, session, ToolRefresh, map[string]any{})
	require.False(t, isErr)
	var refreshed RefreshResult
	require.NoError(t, json.Unmarshal([]byte(text), &refreshed))
	assert.Equal(t, "static", refreshed.Source)
	assert.Equal(t, 1, refreshed.Deviations)
	assert.Equal(t, 1, refreshed.Capa)
	assert.Equal(t, 2, src.loads)

	_, isErr = callText(t, session, ToolAuditSummary, map[string]any{"refresh": true})
	require.False(t, isErr)
	assert.Equal(t, 3, src.loads)
}

func TestServer_SourceError(t *testing.T) {
	session := connect(t, &staticSource{err: errors.New("quarter not staged")})

	text, isErr := callText(t, session, ToolMismatchAnalysis, map[string]any{})
	assert.True(t, isErr)
	assert.Contains(t, text, "quarter not staged")
}
