package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/service"
)

var (
	analyzeKind   string
	analyzeReport string
	analyzeQuiet  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Analyze a dental image",
	Long: `Analyze an X-ray or gum photo and print the unified result.

Examples:
  toothsense analyze scan.png --type xray
  toothsense analyze gums.jpg --type gum --report report.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeKind, "type", "t", "", "image kind: xray or gum (required)")
	analyzeCmd.Flags().StringVarP(&analyzeReport, "report", "r", "", "write the plain-text report to this file")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "do not print stage progress")
	_ = analyzeCmd.MarkFlagRequired("type")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	kind, err := domain.ParseImageKind(analyzeKind)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("cannot read image: %w", err)
	}

	app, err := bootstrap()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	var observer domain.StageObserver
	if !analyzeQuiet {
		observer = domain.StageObserverFunc(func(event domain.StageEvent) {
			if event.Stage == domain.StageIdle {
				return
			}
			fmt.Fprintf(out, "%s %3d%% %s\n", infoColor("»"), event.Progress, event.Message)
		})
	}

	result, err := analyze(ctx, app.Orchestrator, kind, filepath.Base(args[0]), data, observer)
	if err != nil {
		fmt.Fprintf(out, "%s analysis failed (%s)\n", alertColor("✗"), domain.CodeOf(err))
		return err
	}

	printResult(cmd, *result)

	if analyzeReport != "" {
		report := service.BuildReport(*result, time.Now())
		if err := os.WriteFile(analyzeReport, []byte(report), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(out, "%s report written to %s\n", successColor("✓"), analyzeReport)
	}
	return nil
}

func analyze(ctx context.Context, orchestrator *service.Orchestrator, kind domain.ImageKind, filename string, data []byte, observer domain.StageObserver) (*domain.UnifiedResult, error) {
	return orchestrator.RunAnalysis(ctx, domain.AnalysisRequest{
		Kind: kind,
		Image: domain.Image{Data: data, Filename: filename},
	}, observer)
}

func printResult(cmd *cobra.Command, result domain.UnifiedResult) {
	out := cmd.OutOrStdout()

	severity := successColor
	switch result.Severity {
	case domain.SeverityModerate:
		severity = warningColor
	case domain.SeverityHigh:
		severity = alertColor
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s\n", infoColor("Image Type:"), result.ImageKind.DisplayName())
	fmt.Fprintf(out, "%s %s\n", infoColor("Finding:   "), result.PrimaryLabel)
	fmt.Fprintf(out, "%s %d%%\n", infoColor("Confidence:"), result.ConfidencePercent)
	fmt.Fprintf(out, "%s %s\n", infoColor("Severity:  "), severity(result.Severity.RiskLabel()))
	fmt.Fprintln(out)
	fmt.Fprintln(out, result.Description)

	if len(result.AllDetections) > 1 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, infoColor("Detections:"))
		for _, d := range result.AllDetections {
			fmt.Fprintf(out, "  - %s (%.0f%%)\n", d.Label, d.ConfidenceRatio*100)
		}
	}

	fmt.Fprintln(out)
	if result.HasRecommendations() {
		fmt.Fprintln(out, infoColor("Recommendations:"))
		fmt.Fprintln(out, result.Recommendations)
	} else {
		fmt.Fprintln(out, warningColor("Recommendations unavailable."))
	}
}
