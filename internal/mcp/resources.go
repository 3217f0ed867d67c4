package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/service"
)

const labelsURIPrefix = "toothsense://labels/"

// LabelCatalogue lists the findings with curated descriptions for one image
// kind.
type LabelCatalogue struct {
	ImageType  string   `json:"image_type"`
	Labels     []string `json:"labels"`
	Severities []string `json:"severities"`
}

// registerResources exposes one label catalogue per image kind.
func (s *Server) registerResources() {
	for _, kind := range []domain.ImageKind{domain.ImageKindRadiograph, domain.ImageKindGumPhoto} {
		s.mcpServer.AddResource(&mcp.Resource{
			Name:        kind.WireID() + "-labels",
			URI:         labelsURIPrefix + kind.WireID(),
			MIMEType:    "application/json",
			Description: fmt.Sprintf("Findings with curated descriptions for the %s kind", kind.DisplayName()),
		}, s.handleLabels(kind))
	}
}

func (s *Server) handleLabels(kind domain.ImageKind) mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		body, err := json.Marshal(LabelCatalogue{
			ImageType: string(kind),
			Labels:    service.KnownLabels(kind),
			Severities: []string{
				string(domain.SeverityLow),
				string(domain.SeverityModerate),
				string(domain.SeverityHigh),
			},
		})
		if err != nil {
			return nil, err
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(body),
			}},
		}, nil
	}
}
