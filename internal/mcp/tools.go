package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/service"
)

// Tool names
const (
	ToolAnalyzeImage   = "analyze_dental_image"
	ToolDescribe       = "describe_finding"
	ToolGenerateReport = "generate_report"
)

// AnalyzeImageInput is the argument of analyze_dental_image. Exactly one of
// ImageBase64 and ImagePath must be set.
type AnalyzeImageInput struct {
	ImageType   string `json:"image_type" jsonschema:"kind of image: xray or gum"`
	ImageBase64 string `json:"image_base64,omitempty" jsonschema:"base64 encoded image bytes"`
	ImagePath   string `json:"image_path,omitempty" jsonschema:"path of an image file readable by the server"`
	Filename    string `json:"filename,omitempty" jsonschema:"original file name of the image"`
}

// DescribeInput is the argument of describe_finding.
type DescribeInput struct {
	ImageType string `json:"image_type" jsonschema:"kind of image: xray or gum"`
	Label     string `json:"label" jsonschema:"finding label such as Caries or Gingivitis"`
	Severity  string `json:"severity,omitempty" jsonschema:"low, moderate or high; defaults to low"`
}

// DescribeOutput is the structured result of describe_finding.
type DescribeOutput struct {
	ImageType   string `json:"image_type"`
	Label       string `json:"label"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// ReportInput is the argument of generate_report.
type ReportInput struct {
	Result domain.UnifiedResult `json:"result" jsonschema:"analysis result returned by analyze_dental_image"`
}

// registerTools registers the analysis tools with the MCP SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolAnalyzeImage,
		Description: "Analyze a dental X-ray or gum photo. Returns the detected condition, confidence, severity, description and, when available, treatment recommendations.",
	}, s.handleAnalyzeImage)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolDescribe,
		Description: "Describe a dental finding for an image kind and severity without running an analysis.",
	}, s.handleDescribe)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGenerateReport,
		Description: "Render an analysis result as a plain-text patient report.",
	}, s.handleGenerateReport)

	s.logger.WithField("tool_count", 3).Debug("Registered MCP tools")
}

func (s *Server) handleAnalyzeImage(ctx context.Context, req *mcp.CallToolRequest, in AnalyzeImageInput) (*mcp.CallToolResult, any, error) {
	log := s.logger.WithField("tool", ToolAnalyzeImage)
	log.Info("Tool invoked")

	request, err := s.analysisRequest(in)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.orchestrator.RunAnalysis(ctx, request, progressObserver(ctx, req, log))
	if err != nil {
		log.WithField("code", domain.CodeOf(err)).Warn("Analysis failed")
		return nil, nil, fmt.Errorf("analysis failed (%s)", domain.CodeOf(err))
	}

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: service.BuildReport(*result, time.Now())}},
		StructuredContent: result,
	}, nil, nil
}

// analysisRequest builds the workflow request. A missing image type is left
// for the orchestrator to reject.
func (s *Server) analysisRequest(in AnalyzeImageInput) (domain.AnalysisRequest, error) {
	var req domain.AnalysisRequest

	if in.ImageType != "" {
		kind, err := domain.ParseImageKind(in.ImageType)
		if err != nil {
			return req, err
		}
		req.Kind = kind
	}

	switch {
	case in.ImageBase64 != "" && in.ImagePath != "":
		return req, fmt.Errorf("set only one of image_base64 and image_path")
	case in.ImageBase64 != "":
		data, err := base64.StdEncoding.DecodeString(in.ImageBase64)
		if err != nil {
			return req, fmt.Errorf("image_base64 is not valid base64: %w", err)
		}
		req.Image = domain.Image{Data: data, Filename: in.Filename}
	case in.ImagePath != "":
		data, err := s.readImageFile(in.ImagePath)
		if err != nil {
			return req, err
		}
		name := in.Filename
		if name == "" {
			name = filepath.Base(in.ImagePath)
		}
		req.Image = domain.Image{Data: data, Filename: name}
	}
	return req, nil
}

func (s *Server) readImageFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("image_path %s is a directory", path)
	}
	if s.maxImageBytes > 0 && info.Size() > s.maxImageBytes {
		return nil, fmt.Errorf("image is %d bytes, limit is %d", info.Size(), s.maxImageBytes)
	}
	return os.ReadFile(path)
}

// progressObserver forwards stage events as MCP progress notifications when
// the client asked for them, and logs them otherwise.
func progressObserver(ctx context.Context, req *mcp.CallToolRequest, log *logrus.Entry) domain.StageObserver {
	var token any
	if req != nil && req.Params != nil {
		token = req.Params.GetProgressToken()
	}

	return domain.StageObserverFunc(func(event domain.StageEvent) {
		log.WithFields(logrus.Fields{
			"analysis_id": event.AnalysisID,
			"stage":       event.Stage,
			"progress":    event.Progress,
		}).Debug("Stage changed")

		if token == nil || req.Session == nil {
			return
		}
		err := req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      float64(event.Progress),
			Total:         100,
			Message:       event.Message,
		})
		if err != nil {
			log.WithError(err).Debug("Progress notification not delivered")
		}
	})
}

func (s *Server) handleDescribe(_ context.Context, _ *mcp.CallToolRequest, in DescribeInput) (*mcp.CallToolResult, DescribeOutput, error) {
	kind, err := domain.ParseImageKind(in.ImageType)
	if err != nil {
		return nil, DescribeOutput{}, err
	}
	if in.Label == "" {
		return nil, DescribeOutput{}, fmt.Errorf("label is required")
	}
	severity := domain.SeverityLow
	if in.Severity != "" {
		if severity, err = domain.ParseSeverity(in.Severity); err != nil {
			return nil, DescribeOutput{}, err
		}
	}

	return nil, DescribeOutput{
		ImageType:   string(kind),
		Label:       in.Label,
		Severity:    string(severity),
		Description: service.Describe(kind, in.Label, severity),
	}, nil
}

func (s *Server) handleGenerateReport(_ context.Context, _ *mcp.CallToolRequest, in ReportInput) (*mcp.CallToolResult, any, error) {
	if in.Result.PrimaryLabel == "" {
		return nil, nil, fmt.Errorf("result has no disease")
	}

	now := time.Now()
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: service.BuildReport(in.Result, now)}},
		Meta:    mcp.Meta{"filename": service.ReportFilename(now)},
	}, nil, nil
}
