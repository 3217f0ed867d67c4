package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/toothsense-analysis-server/internal/mcp"
	"github.com/toothsense-analysis-server/internal/setup"
)

func main() {
	// stdout carries the protocol
	app, err := setup.Bootstrap(setup.Options{LogToStderr: true})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer app.Close()

	mcpServer, err := mcp.NewServer(app.Config, app.Orchestrator, app.Logger)
	if err != nil {
		app.Logger.WithError(err).Fatal("Failed to create MCP server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mcpServer.Start(ctx); err != nil && ctx.Err() == nil {
		app.Logger.WithError(err).Fatal("MCP server failed")
	}

	app.Logger.Info("MCP server stopped")
}
