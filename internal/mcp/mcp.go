// Package mcp implements the Model Context Protocol server for Cortex.
//
// The MCP server exposes the same capabilities as the HTTP API through
// MCP resources and tools, allowing MCP-compatible AI sales agents to
// manage brains, seed content, and capture insights.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/cortex/internal/registry"
	"github.com/ashita-ai/cortex/internal/service/brains"
)

// Server wraps the MCP server with Cortex's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	brainSvc  *brains.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(brainSvc *brains.Service, version string, logger *slog.Logger) *Server {
	s := &Server{
		brainSvc: brainSvc,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"cortex",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// cortex://brains — all brains with live stats.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"cortex://brains",
			"Brains",
			mcplib.WithResourceDescription("All knowledge-base brains with live content counts"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleBrainsResource,
	)

	// cortex://brains/{brain_id}/report — completeness report for one brain.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"cortex://brains/{brain_id}/report",
			"Brain Report",
			mcplib.WithTemplateDescription("Content completeness report for a specific brain"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleBrainReportResource,
	)
}

func (s *Server) handleBrainsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	list, err := s.brainSvc.ListBrains(ctx, registry.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list brains: %w", err)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal brains: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "cortex://brains",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleBrainReportResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	// Extract brain_id from cortex://brains/{brain_id}/report.
	uri := request.Params.URI
	brainID := strings.TrimSuffix(strings.TrimPrefix(uri, "cortex://brains/"), "/report")
	if brainID == "" || brainID == uri {
		return nil, fmt.Errorf("mcp: invalid brain report URI: %s", uri)
	}

	report, err := s.brainSvc.GetReport(ctx, brainID)
	if err != nil {
		return nil, fmt.Errorf("mcp: brain report: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal report: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
