package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/service"
)

var (
	describeKind     string
	describeSeverity string
	describeList     bool
)

var describeCmd = &cobra.Command{
	Use:   "describe [label]",
	Short: "Print the curated description of a finding",
	Long: `Print the curated description for a finding and severity, or list the
findings known for an image kind with --list.

Examples:
  toothsense describe Gingivitis --type gum --severity moderate
  toothsense describe --type xray --list`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDescribe,
}

func init() {
	describeCmd.Flags().StringVarP(&describeKind, "type", "t", "", "image kind: xray or gum (required)")
	describeCmd.Flags().StringVarP(&describeSeverity, "severity", "s", string(domain.SeverityLow), "low, moderate or high")
	describeCmd.Flags().BoolVarP(&describeList, "list", "l", false, "list known findings")
	_ = describeCmd.MarkFlagRequired("type")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	kind, err := domain.ParseImageKind(describeKind)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if describeList {
		fmt.Fprintf(out, "%s\n", infoColor(kind.DisplayName()+" findings:"))
		for _, label := range service.KnownLabels(kind) {
			fmt.Fprintf(out, "  - %s\n", label)
		}
		return nil
	}

	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("a finding label is required unless --list is set")
	}
	severity, err := domain.ParseSeverity(describeSeverity)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, service.Describe(kind, args[0], severity))
	return nil
}
