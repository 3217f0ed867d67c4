// Package mcp exposes the dental image analysis workflow as MCP tools, a
// prompt and a label catalogue resource.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/logging"
	"github.com/toothsense-analysis-server/internal/service"
)

// Server represents the ToothSense MCP server
type Server struct {
	mcpServer     *mcp.Server
	orchestrator  *service.Orchestrator
	maxImageBytes int64
	logger        *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(configManager domain.ConfigManager, orchestrator *service.Orchestrator, logger *logrus.Logger) (*Server, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	cfg := configManager.GetConfig()

	serverInfo := &mcp.Implementation{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}

	server := &Server{
		mcpServer:     mcp.NewServer(serverInfo, nil),
		orchestrator:  orchestrator,
		maxImageBytes: cfg.Analysis.MaxImageBytes,
		logger:        logger,
	}

	server.registerCapabilities()
	return server, nil
}

// Start serves MCP over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting ToothSense MCP Server...")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerCapabilities registers all MCP tools, resources, and prompts
func (s *Server) registerCapabilities() {
	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	s.logger.Info("MCP capabilities registered")
}
