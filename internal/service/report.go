package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/toothsense-analysis-server/internal/domain"
)

const reportTitle = "ToothSense - Dental Analysis Report"

// BuildReport renders result as the downloadable plain-text report.
func BuildReport(result domain.UnifiedResult, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString(reportTitle + "\n")
	b.WriteString(strings.Repeat("=", len(reportTitle)) + "\n\n")

	if result.ImageKind.IsValid() {
		fmt.Fprintf(&b, "Image Type: %s\n", result.ImageKind.DisplayName())
	}
	fmt.Fprintf(&b, "Disease Detected: %s\n", result.PrimaryLabel)
	fmt.Fprintf(&b, "Confidence Level: %d%%\n", result.ConfidencePercent)
	fmt.Fprintf(&b, "Severity: %s\n\n", result.Severity.RiskLabel())

	b.WriteString("Description:\n")
	b.WriteString(result.Description + "\n")

	if result.HasRecommendations() {
		b.WriteString("\nTreatment Recommendations:\n")
		b.WriteString(result.Recommendations + "\n")
	}

	if len(result.AllDetections) > 0 {
		b.WriteString("\nDetailed Detections:\n")
		for _, d := range result.AllDetections {
			fmt.Fprintf(&b, "- %s: %d%% confidence\n", d.Label, ConfidencePercent(d.ConfidenceRatio))
		}
	}

	fmt.Fprintf(&b, "\nGenerated on: %s\n", generatedAt.Format("January 2, 2006 15:04:05 MST"))
	return b.String()
}

// ReportFilename returns the download name for a report generated at t.
func ReportFilename(t time.Time) string {
	return fmt.Sprintf("toothsense-analysis-report-%d.txt", t.UnixMilli())
}
