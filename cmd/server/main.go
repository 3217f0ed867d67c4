package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/toothsense-analysis-server/internal/api"
	"github.com/toothsense-analysis-server/internal/setup"
)

func main() {
	app, err := setup.Bootstrap(setup.Options{})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer app.Close()

	cfg := app.Config.GetConfig()
	app.Logger.WithField("addr", cfg.Server.Host).WithField("port", cfg.Server.Port).
		Info("Starting ToothSense analysis server")

	server := api.NewServer(app.Config, app.Orchestrator, app.Collaborators, app.Recorder, app.Logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		app.Logger.WithError(err).Fatal("Server failed")
	}

	app.Logger.Info("Server stopped")
}
