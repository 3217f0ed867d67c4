package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toothsense-analysis-server/internal/setup"
)

var (
	registerConfigPath string
	registerBinary     string
	registerEnv        []string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the MCP server with the desktop client",
	Long: `Add or update the toothsense-analysis entry in the desktop client's
MCP configuration. Other servers and settings in the file are kept.

Examples:
  toothsense register
  toothsense register --binary /usr/local/bin/toothsense-mcp --env TOOTHSENSE_INFERENCE_MOCK=true`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerConfigPath, "client-config", "", "client config file (defaults to the desktop client's location)")
	registerCmd.Flags().StringVar(&registerBinary, "binary", "", "path to toothsense-mcp (looked up when empty)")
	registerCmd.Flags().StringArrayVar(&registerEnv, "env", nil, "KEY=VALUE passed to the server; repeatable")
}

func runRegister(cmd *cobra.Command, args []string) error {
	env, err := parseEnv(registerEnv)
	if err != nil {
		return err
	}

	path, err := setup.RegisterServer(setup.RegisterOptions{
		ConfigPath: registerConfigPath,
		BinaryPath: registerBinary,
		Env:        env,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s registered %s in %s\n", successColor("✓"), setup.ServerName, path)
	fmt.Fprintln(out, warningColor("Restart the desktop client to pick up the change."))
	return nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q, want KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
