// Package cli implements the Cobra command-line interface for cmdgate.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/cmdgate/internal/output"
)

// Version information set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flag values
var (
	flagConfig    string
	flagOutput    string
	flagJSON      bool
	flagYAML      bool
	flagVerbose   bool
	flagDB        string
	flagStore     string
	flagSessionID string
	flagProject   string
)

var rootCmd = &cobra.Command{
	Use:   "cmdgate",
	Short: "Command approval gate for automated agents",
	Long: `cmdgate decides whether a shell command may run before anything executes it.

Every command gets one of three verdicts:
  allowed            - matches an allow rule; safe to run
  denied             - matches a deny rule; must never run
  requires_approval  - matches nothing; a human decides

Approvals can be granted once (consumed on first use), for a session, or
persistently. Nothing is ever allowed by default, and deny rules always win.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			log.SetLevel(log.DebugLevel)
		}
		if flagProject == "" {
			return nil
		}
		if err := os.Chdir(flagProject); err != nil {
			return fmt.Errorf("changing directory to %s: %w", flagProject, err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, _ := os.Getwd()
		userConfig, projectConfig := configPaths(projectDir)

		payload := map[string]any{
			"version":        version,
			"commit":         commit,
			"build_date":     date,
			"go_version":     runtime.Version(),
			"user_config":    userConfig,
			"project_config": projectConfig,
			"project_path":   projectDir,
		}

		switch GetOutput() {
		case "json", "yaml":
			out := output.New(output.Format(GetOutput()))
			return out.Write(payload)
		case "text":
			fmt.Printf("cmdgate %s\n", version)
			fmt.Printf("  commit:  %s\n", commit)
			fmt.Printf("  built:   %s\n", date)
			fmt.Printf("  go:      %s\n", runtime.Version())
			fmt.Printf("  config:  %s\n", projectConfig)
			fmt.Printf("  project: %s\n", projectDir)
			return nil
		default:
			return fmt.Errorf("unsupported format: %s", GetOutput())
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetOutput returns the configured output format.
// Precedence: CLI flags > CMDGATE_OUTPUT_FORMAT env > default
func GetOutput() string {
	if flagJSON {
		return "json"
	}
	if flagYAML {
		return "yaml"
	}
	if flagOutput != "text" {
		return flagOutput
	}

	if envFormat := os.Getenv("CMDGATE_OUTPUT_FORMAT"); envFormat != "" {
		switch envFormat {
		case "json", "yaml", "text":
			return envFormat
		}
	}

	return flagOutput
}

// GetSessionID returns the session id flag, falling back to the environment.
func GetSessionID() string {
	if flagSessionID != "" {
		return flagSessionID
	}
	return os.Getenv("CMDGATE_SESSION_ID")
}

func projectPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return cwd, nil
}

func configPaths(projectDir string) (userPath, projectPath string) {
	home, err := os.UserHomeDir()
	if err == nil {
		userPath = filepath.Join(home, ".cmdgate", "config.toml")
	}
	projectPath = filepath.Join(projectDir, ".cmdgate", "config.toml")
	if flagConfig != "" {
		projectPath = flagConfig
	}
	return userPath, projectPath
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "output format: text, json, yaml (env: CMDGATE_OUTPUT_FORMAT)")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "shorthand for --output=json")
	rootCmd.PersistentFlags().BoolVarP(&flagYAML, "yaml", "y", false, "shorthand for --output=yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "audit database path")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "durable approvals file path")
	rootCmd.PersistentFlags().StringVarP(&flagSessionID, "session-id", "s", "", "session ID (env: CMDGATE_SESSION_ID)")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "C", "", "project directory")

	rootCmd.AddCommand(versionCmd)
}
