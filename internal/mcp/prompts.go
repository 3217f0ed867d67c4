package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/service"
)

// PromptTreatmentPlan is the name of the treatment planning prompt.
const PromptTreatmentPlan = "dental_treatment_plan"

// registerPrompts registers the treatment planning prompt. It produces the
// same prompt the recommendation collaborator receives, so a client model can
// stand in for it.
func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        PromptTreatmentPlan,
		Description: "Ask for treatment recommendations for an analyzed dental finding.",
		Arguments: []*mcp.PromptArgument{
			{Name: "disease", Description: "Detected condition, e.g. Gingivitis", Required: true},
			{Name: "severity", Description: "low, moderate or high", Required: true},
			{Name: "image_type", Description: "xray or gum; defaults to xray"},
		},
	}, handleTreatmentPlan)
}

func handleTreatmentPlan(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments

	disease := args["disease"]
	if disease == "" {
		return nil, fmt.Errorf("disease is required")
	}
	severity, err := domain.ParseSeverity(args["severity"])
	if err != nil {
		return nil, err
	}
	kind := domain.ImageKindRadiograph
	if raw := args["image_type"]; raw != "" {
		if kind, err = domain.ParseImageKind(raw); err != nil {
			return nil, err
		}
	}

	result := domain.UnifiedResult{ImageKind: kind, PrimaryLabel: disease, Severity: severity}
	prompt := service.RecommendationPrompt(disease, severity, service.AugmentationContext(result))

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Treatment plan for %s (%s)", disease, severity),
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: prompt},
		}},
	}, nil
}
