package setup

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/toothsense-analysis-server/internal/config"
	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/logging"
	"github.com/toothsense-analysis-server/internal/metrics"
	"github.com/toothsense-analysis-server/internal/service"
	"github.com/toothsense-analysis-server/pkg/external"
)

// Options controls how Bootstrap loads configuration.
type Options struct {
	// EnvFile is loaded before configuration when it exists. Defaults to ".env".
	EnvFile string
	// ConfigPaths are searched for config.yaml. Empty uses the default paths.
	ConfigPaths []string
	// LogToStderr forces logs off stdout, for the stdio MCP transport.
	LogToStderr bool
}

// App holds the wired components shared by every entry point.
type App struct {
	Config        domain.ConfigManager
	Logger        *logrus.Logger
	Recorder      *metrics.Recorder
	Collaborators *external.Collaborators
	Orchestrator  *service.Orchestrator
}

// Bootstrap loads the environment and configuration, then wires the app.
func Bootstrap(opts Options) (*App, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var (
		configManager *config.Manager
		err           error
	)
	if len(opts.ConfigPaths) > 0 {
		configManager, err = config.NewManagerWithPaths(opts.ConfigPaths...)
	} else {
		configManager, err = config.NewManager()
	}
	if err != nil {
		return nil, err
	}
	if err := configManager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logCfg := configManager.GetConfig().Logging
	if opts.LogToStderr && (logCfg.Output == "" || logCfg.Output == "stdout") {
		logCfg.Output = "stderr"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	return NewApp(configManager, logger)
}

// NewApp wires collaborators, metrics and the orchestrator from configuration.
func NewApp(configManager domain.ConfigManager, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	cfg := configManager.GetConfig()

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder(cfg.Metrics.Namespace)
	}

	collaborators, err := external.NewCollaborators(cfg, logger, recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to create collaborators: %w", err)
	}

	augmenter := service.NewAugmenter(collaborators.Recommendation, collaborators.Cache, logger, recorder)
	orchestrator := service.NewOrchestrator(collaborators.Inference, augmenter, service.OrchestratorConfig{
		Pacing:        service.PacingFromConfig(cfg.Pacing),
		MaxImageBytes: cfg.Analysis.MaxImageBytes,
		MaxDimension:  cfg.Analysis.MaxDimension,
	}, logger, recorder)

	logger.WithFields(logrus.Fields{
		"environment":     cfg.Environment,
		"mock_inference":  cfg.Inference.Mock,
		"recommendations": cfg.Recommendation.Enabled,
		"cache":           cfg.Cache.Enabled,
	}).Info("Application wired")

	return &App{
		Config:        configManager,
		Logger:        logger,
		Recorder:      recorder,
		Collaborators: collaborators,
		Orchestrator:  orchestrator,
	}, nil
}

// Close releases collaborator connections.
func (a *App) Close() error {
	if a == nil || a.Collaborators == nil {
		return nil
	}
	return a.Collaborators.Close()
}
