package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/logging"
	"github.com/toothsense-analysis-server/internal/service"
	"github.com/toothsense-analysis-server/pkg/external"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfake-image-body")

type staticConfig struct {
	cfg *domain.Config
}

func (s staticConfig) GetConfig() *domain.Config             { return s.cfg }
func (s staticConfig) GetServerConfig() *domain.ServerConfig { return &s.cfg.Server }
func (s staticConfig) Reload() error                         { return nil }
func (s staticConfig) Validate() error                       { return nil }
func (s staticConfig) IsProduction() bool                    { return false }
func (s staticConfig) IsDevelopment() bool                   { return true }

func newTestServer(t *testing.T) (*Server, *external.MockInferenceClient) {
	t.Helper()
	inference := external.NewMockInferenceClient(0)
	augmenter := service.NewAugmenter(external.MockRecommendationClient{}, nil, logging.Discard(), nil)
	orchestrator := service.NewOrchestrator(inference, augmenter, service.OrchestratorConfig{MaxImageBytes: 1 << 20}, logging.Discard(), nil)

	cfg := &domain.Config{
		Analysis: domain.AnalysisConfig{MaxImageBytes: 1 << 20},
		MCP:      domain.MCPConfig{ServerName: "toothsense-analysis", ServerVersion: "1.0.0"},
	}
	server, err := NewServer(staticConfig{cfg: cfg}, orchestrator, logging.Discard())
	require.NoError(t, err)
	return server, inference
}

func connect(t *testing.T, server *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		cs.Close()
		ss.Wait()
	})
	return cs
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServer_RequiresOrchestrator(t *testing.T) {
	_, err := NewServer(staticConfig{cfg: &domain.Config{}}, nil, nil)
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	server, _ := newTestServer(t)
	cs := connect(t, server)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolAnalyzeImage, ToolDescribe, ToolGenerateReport}, names)
}

func TestAnalyzeImage_Base64(t *testing.T) {
	server, inference := newTestServer(t)
	cs := connect(t, server)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolAnalyzeImage,
		Arguments: map[string]any{
			"image_type":   "gum",
			"image_base64": base64.StdEncoding.EncodeToString(pngBytes),
		},
	})

	require.NoError(t, err)
	assert.False(t, res.IsError, textOf(t, res))
	assert.Contains(t, textOf(t, res), "Disease Detected: Gingivitis")
	assert.Contains(t, textOf(t, res), "Confidence Level: 92%")
	assert.Equal(t, int64(1), inference.Calls())

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var result domain.UnifiedResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "Gingivitis", result.PrimaryLabel)
	assert.True(t, result.HasRecommendations())
}

func TestAnalyzeImage_Path(t *testing.T) {
	server, _ := newTestServer(t)
	cs := connect(t, server)

	path := filepath.Join(t.TempDir(), "xray.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o600))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolAnalyzeImage,
		Arguments: map[string]any{"image_type": "xray", "image_path": path},
	})

	require.NoError(t, err)
	assert.False(t, res.IsError, textOf(t, res))
	assert.Contains(t, textOf(t, res), "Disease Detected: Caries")
}

func TestAnalyzeImage_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "Missing image",
			args: map[string]any{"image_type": "gum"},
			want: domain.ErrInvalidInput,
		},
		{
			name: "Unknown kind",
			args: map[string]any{"image_type": "ct", "image_base64": base64.StdEncoding.EncodeToString(pngBytes)},
			want: "unknown image kind",
		},
		{
			name: "Both sources",
			args: map[string]any{"image_type": "gum", "image_base64": "aGk=", "image_path": "/tmp/x.png"},
			want: "only one of",
		},
		{
			name: "Bad base64",
			args: map[string]any{"image_type": "gum", "image_base64": "%%%"},
			want: "not valid base64",
		},
		{
			name: "Missing file",
			args: map[string]any{"image_type": "gum", "image_path": "/nonexistent/scan.png"},
			want: "cannot read image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, inference := newTestServer(t)
			cs := connect(t, server)

			res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: ToolAnalyzeImage, Arguments: tt.args})

			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, textOf(t, res), tt.want)
			assert.Zero(t, inference.Calls())
		})
	}
}

func TestDescribeFinding(t *testing.T) {
	server, _ := newTestServer(t)
	cs := connect(t, server)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolDescribe,
		Arguments: map[string]any{"image_type": "gum", "label": "Gingivitis"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, textOf(t, res))

	var out DescribeOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
	assert.Equal(t, "low", out.Severity)
	assert.Equal(t, service.Describe(domain.ImageKindGumPhoto, "Gingivitis", domain.SeverityLow), out.Description)

	res, err = cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolDescribe,
		Arguments: map[string]any{"image_type": "gum", "label": "Gingivitis", "severity": "extreme"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGenerateReport(t *testing.T) {
	server, _ := newTestServer(t)
	cs := connect(t, server)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolGenerateReport,
		Arguments: map[string]any{
			"result": map[string]any{
				"image_type":  "radiograph",
				"disease":     "Crown",
				"confidence":  90,
				"severity":    "moderate",
				"description": "Crown detected with some signs of wear or minor issues.",
			},
		},
	})

	require.NoError(t, err)
	require.False(t, res.IsError, textOf(t, res))
	assert.Contains(t, textOf(t, res), "Image Type: X-Ray Image")
	assert.Contains(t, textOf(t, res), "Severity: Moderate Risk")
	assert.Contains(t, res.Meta["filename"], "toothsense-analysis-report-")
}

func TestLabelResources(t *testing.T) {
	server, _ := newTestServer(t)
	cs := connect(t, server)

	res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: "toothsense://labels/gum"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	var catalogue LabelCatalogue
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &catalogue))
	assert.Equal(t, "gum-photo", catalogue.ImageType)
	assert.Contains(t, catalogue.Labels, "Gingivitis")
	assert.Equal(t, []string{"low", "moderate", "high"}, catalogue.Severities)
}

func TestTreatmentPlanPrompt(t *testing.T) {
	server, _ := newTestServer(t)
	cs := connect(t, server)

	res, err := cs.GetPrompt(context.Background(), &mcp.GetPromptParams{
		Name:      PromptTreatmentPlan,
		Arguments: map[string]string{"disease": "Gingivitis", "severity": "low", "image_type": "gum"},
	})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	text, ok := res.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, service.RecommendationPrompt("Gingivitis", domain.SeverityLow, "Gum analysis showing Gingivitis with low severity"), text.Text)

	_, err = cs.GetPrompt(context.Background(), &mcp.GetPromptParams{
		Name:      PromptTreatmentPlan,
		Arguments: map[string]string{"disease": "Gingivitis", "severity": "unknown"},
	})
	assert.Error(t, err)
}
