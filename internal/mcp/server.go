// Package mcp exposes the dashboard sections as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/internal/service"
)

// Tool names
const (
	ToolDeviationTracking  = domain.SectionDeviationTracking
	ToolCapaCandidates     = domain.SectionCapaCandidates
	ToolMismatchAnalysis   = domain.SectionMismatchAnalysis
	ToolPredictiveModeling = domain.SectionPredictiveModeling
	ToolAuditSummary       = domain.SectionAuditSummary
	ToolDashboard          = "dashboard"
	ToolRefresh            = "refresh_analysis"
)

// Analyzer serves dashboards of the current analysis run
type Analyzer interface {
	SourceName() string
	Dashboard(ctx context.Context) (*domain.Dashboard, error)
	Section(ctx context.Context, name string) (interface{}, error)
	Refresh(ctx context.Context) (*service.Analysis, error)
}

// Server represents the MCP server
type Server struct {
	mcpServer *mcp.Server
	analyzer  Analyzer
	logger    *logrus.Logger
}

// SectionParams are the arguments of every section tool
type SectionParams struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"reload the record source and recompute before answering"`
}

// RefreshResult summarizes a recomputed run
type RefreshResult struct {
	RunID      string           `json:"run_id"`
	Source     string           `json:"source"`
	Deviations int              `json:"deviations_found"`
	Capa       int              `json:"capa_candidates"`
	Mismatches int              `json:"mismatch_cases"`
	RiskState  domain.RiskState `json:"risk_state"`
}

var sectionDescriptions = map[string]string{
	ToolDeviationTracking:  "Therapy records whose end date precedes their start date",
	ToolCapaCandidates:     "Drug and reaction combinations reported often enough to review for corrective action",
	ToolMismatchAnalysis:   "Cases whose documented indication differs from the reported reaction",
	ToolPredictiveModeling: "Random forest classification report for death versus non-death outcomes",
	ToolAuditSummary:       "Data and configuration behind the trained risk model",
}

// NewServer creates a new MCP server instance with every tool registered
func NewServer(cfg domain.MCPConfig, analyzer Analyzer, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	s := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		analyzer:  analyzer,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// Start serves MCP over stdin and stdout until ctx is cancelled or the client
// disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("source", s.analyzer.SourceName()).Info("Starting MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	for _, name := range domain.SectionNames {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        name,
			Description: sectionDescriptions[name],
		}, s.sectionHandler(name))
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolDashboard,
		Description: "All five dashboard sections of the current analysis run",
	}, s.handleDashboard)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolRefresh,
		Description: "Reload the record source and recompute every analysis stage",
	}, s.handleRefresh)

	s.logger.WithField("tool_count", len(domain.SectionNames)+2).Debug("Registered MCP tools")
}

func (s *Server) sectionHandler(name string) func(context.Context, *mcp.CallToolRequest, SectionParams) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, params SectionParams) (*mcp.CallToolResult, any, error) {
		s.logger.WithFields(logrus.Fields{"tool": name, "refresh": params.Refresh}).Info("Tool invoked")

		if params.Refresh {
			if _, err := s.analyzer.Refresh(ctx); err != nil {
				return s.createErrorResult("Refresh failed", err), nil, nil
			}
		}
		section, err := s.analyzer.Section(ctx, name)
		if err != nil {
			return s.createErrorResult("Analysis failed", err), nil, nil
		}
		return s.createJSONResult(section), nil, nil
	}
}

func (s *Server) handleDashboard(ctx context.Context, req *mcp.CallToolRequest, params SectionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": ToolDashboard, "refresh": params.Refresh}).Info("Tool invoked")

	if params.Refresh {
		if _, err := s.analyzer.Refresh(ctx); err != nil {
			return s.createErrorResult("Refresh failed", err), nil, nil
		}
	}
	d, err := s.analyzer.Dashboard(ctx)
	if err != nil {
		return s.createErrorResult("Analysis failed", err), nil, nil
	}
	return s.createJSONResult(d), nil, nil
}

func (s *Server) handleRefresh(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolRefresh).Info("Tool invoked")

	if _, err := s.analyzer.Refresh(ctx); err != nil {
		return s.createErrorResult("Refresh failed", err), nil, nil
	}
	d, err := s.analyzer.Dashboard(ctx)
	if err != nil {
		return s.createErrorResult("Analysis failed", err), nil, nil
	}
	return s.createJSONResult(RefreshResult{
		RunID:      d.RunID,
		Source:     d.Source,
		Deviations: d.DeviationTracking.Deviations,
		Capa:       len(d.CapaCandidates.Candidates),
		Mismatches: d.MismatchAnalysis.Mismatches,
		RiskState:  d.PredictiveModeling.State,
	}), nil, nil
}

// createJSONResult renders v as indented JSON text content
func (s *Server) createJSONResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s.createErrorResult("Failed to encode result", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	s.logger.WithError(err).Warn(message)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)},
		},
		IsError: true,
	}
}
