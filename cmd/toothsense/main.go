// Command toothsense runs dental image analyses from the terminal and
// registers the MCP server with desktop clients.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/toothsense-analysis-server/internal/setup"
)

var (
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
)

var (
	configDir string
	envFile   string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "toothsense",
	Short: "Dental image analysis from the command line",
	Long: `Run X-ray and gum photo analyses against the configured inference
backend, print curated findings, and write plain-text reports.

Configuration is read from config.yaml and TOOTHSENSE_* environment
variables; a .env file is loaded first when present.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(analyzeCmd, describeCmd, registerCmd)
}

// bootstrap wires the app with logs kept off stdout.
func bootstrap() (*setup.App, error) {
	opts := setup.Options{EnvFile: envFile, LogToStderr: true}
	if configDir != "" {
		opts.ConfigPaths = []string{configDir}
	}
	return setup.Bootstrap(opts)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorColor("Error:"), err)
		os.Exit(1)
	}
}
