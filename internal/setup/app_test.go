package setup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/logging"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfake-image-body")

const fastConfig = `
pacing:
  uploading: 0s
  preprocessing: 0s
  generating: 0s
logging:
  level: error
`

type staticConfig struct {
	cfg *domain.Config
}

func (s staticConfig) GetConfig() *domain.Config             { return s.cfg }
func (s staticConfig) GetServerConfig() *domain.ServerConfig { return &s.cfg.Server }
func (s staticConfig) Reload() error                         { return nil }
func (s staticConfig) Validate() error                       { return nil }
func (s staticConfig) IsProduction() bool                    { return false }
func (s staticConfig) IsDevelopment() bool                   { return true }

// unsetForTest removes key from the environment and restores it afterwards.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestBootstrap_LoadsEnvFileAndConfig(t *testing.T) {
	unsetForTest(t, "TOOTHSENSE_INFERENCE_MOCK")
	unsetForTest(t, "TOOTHSENSE_METRICS_NAMESPACE")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(fastConfig), 0o600))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TOOTHSENSE_INFERENCE_MOCK=true\nTOOTHSENSE_METRICS_NAMESPACE=bootstrap_test\n"), 0o600))

	app, err := Bootstrap(Options{EnvFile: envFile, ConfigPaths: []string{dir}, LogToStderr: true})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })

	cfg := app.Config.GetConfig()
	assert.True(t, cfg.Inference.Mock)
	assert.Equal(t, "bootstrap_test", cfg.Metrics.Namespace)
	assert.Equal(t, os.Stderr, app.Logger.Out)
	require.NotNil(t, app.Recorder)

	result, err := app.Orchestrator.RunAnalysis(context.Background(), domain.AnalysisRequest{
		Kind:  domain.ImageKindGumPhoto,
		Image: domain.Image{Data: pngBytes, Filename: "gum.png"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Gingivitis", result.PrimaryLabel)
	assert.True(t, result.HasRecommendations())
}

func TestBootstrap_MissingEnvFileIgnored(t *testing.T) {
	dir := t.TempDir()

	app, err := Bootstrap(Options{EnvFile: filepath.Join(dir, "missing.env"), ConfigPaths: []string{dir}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.NotNil(t, app.Orchestrator)
	assert.NotNil(t, app.Collaborators.Inference)
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: -1\n"), 0o600))

	_, err := Bootstrap(Options{EnvFile: filepath.Join(dir, "missing.env"), ConfigPaths: []string{dir}})
	assert.Error(t, err)
}

func TestNewApp(t *testing.T) {
	tests := []struct {
		name            string
		metrics         bool
		recommendations bool
	}{
		{name: "Everything enabled", metrics: true, recommendations: true},
		{name: "Metrics disabled", metrics: false, recommendations: true},
		{name: "Recommendations disabled", metrics: true, recommendations: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &domain.Config{
				Inference:      domain.InferenceConfig{Mock: true},
				Recommendation: domain.RecommendationConfig{Enabled: tt.recommendations},
				Cache:          domain.CacheConfig{Enabled: true, MemorySize: 8},
				Analysis:       domain.AnalysisConfig{MaxImageBytes: 1 << 20},
				Metrics:        domain.MetricsConfig{Enabled: tt.metrics, Namespace: "app_test"},
			}

			app, err := NewApp(staticConfig{cfg: cfg}, logging.Discard())
			require.NoError(t, err)
			t.Cleanup(func() { _ = app.Close() })

			assert.Equal(t, tt.metrics, app.Recorder != nil)
			assert.Equal(t, tt.recommendations, app.Collaborators.Recommendation != nil)

			result, err := app.Orchestrator.RunAnalysis(context.Background(), domain.AnalysisRequest{
				Kind:  domain.ImageKindRadiograph,
				Image: domain.Image{Data: pngBytes, Filename: "xray.png"},
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "Caries", result.PrimaryLabel)
			assert.Equal(t, tt.recommendations, result.HasRecommendations())
		})
	}
}

func TestApp_CloseNil(t *testing.T) {
	var app *App
	assert.NoError(t, app.Close())
}
