package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/cmdgate/internal/config"
	"github.com/Dicklesworthstone/cmdgate/internal/gate"
	"github.com/Dicklesworthstone/cmdgate/internal/output"
)

var (
	flagRuleDeny        bool
	flagRuleDescription string
	flagRuleExitCode    bool
	flagRuleOutputFile  string
	flagRuleForce       bool
)

func init() {
	rulesAddCmd.Flags().BoolVar(&flagRuleDeny, "deny", false, "add a deny rule instead of an allow rule")
	rulesAddCmd.Flags().StringVarP(&flagRuleDescription, "description", "d", "", "human-readable reason for the rule")
	rulesRemoveCmd.Flags().BoolVar(&flagRuleDeny, "deny", false, "remove from the deny list instead of the allow list")
	rulesTestCmd.Flags().BoolVar(&flagRuleExitCode, "exit-code", false, "exit 1 when approval is needed, 2 when denied")
	rulesExportCmd.Flags().StringVarP(&flagRuleOutputFile, "file", "f", "", "output file (default: stdout)")
	rulesClearCmd.Flags().BoolVar(&flagRuleForce, "force", false, "required; clearing removes every configured rule")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesRemoveCmd)
	rulesCmd.AddCommand(rulesTestCmd)
	rulesCmd.AddCommand(rulesExportCmd)
	rulesCmd.AddCommand(rulesImportCmd)
	rulesCmd.AddCommand(rulesClearCmd)

	rootCmd.AddCommand(rulesCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage allow/deny rules",
	Long: `Manage the allow and deny patterns that classify commands.

Patterns that look like regexes (leading ^, trailing $, or regex metacharacters)
are matched as regexes anchored at the start of the command. Everything else
uses shell-glob semantics against the whole command string.

Deny rules always win: a command matching both an allow and a deny rule is
denied. A command matching nothing requires interactive approval.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine := buildEngine(cfg)
		allow, deny := engine.Rules()
		out := output.New(output.Format(GetOutput()))

		switch GetOutput() {
		case "json", "yaml":
			return out.Write(map[string]any{
				"allow": allow,
				"deny":  deny,
				"stats": engine.Stats(),
			})
		default:
			printRuleList("deny", deny)
			printRuleList("allow", allow)
			return nil
		}
	},
}

func printRuleList(kind string, rules []gate.Rule) {
	fmt.Printf("%s (%d):\n", kind, len(rules))
	for _, r := range rules {
		if r.Description != "" {
			fmt.Printf("  %-30s %s\n", r.Pattern, r.Description)
		} else {
			fmt.Printf("  %s\n", r.Pattern)
		}
	}
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <pattern>",
	Short: "Add a rule to the project config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := strings.TrimSpace(args[0])
		if pattern == "" {
			return fmt.Errorf("pattern is required")
		}

		path, err := rulesConfigPath()
		if err != nil {
			return err
		}
		rule := config.RuleConfig{Pattern: pattern, Description: flagRuleDescription}
		if err := config.AppendRule(path, !flagRuleDeny, rule); err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		out.Success(fmt.Sprintf("added %s rule %q to %s", ruleKind(!flagRuleDeny), pattern, path))
		return nil
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <pattern>",
	Short: "Remove a rule from the project config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := rulesConfigPath()
		if err != nil {
			return err
		}
		if err := config.RemoveRule(path, !flagRuleDeny, args[0]); err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		out.Success(fmt.Sprintf("removed %s rule %q from %s", ruleKind(!flagRuleDeny), args[0], path))
		return nil
	},
}

var rulesTestCmd = &cobra.Command{
	Use:   "test <command>",
	Short: "Classify a command against the configured rules",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine := buildEngine(cfg)
		v := engine.Validate(strings.Join(args, " "))
		out := output.New(output.Format(GetOutput()))

		switch GetOutput() {
		case "json", "yaml":
			if err := out.Write(v); err != nil {
				return err
			}
		default:
			fmt.Printf("%s  %s\n", verdictMark(v.Verdict, v.Verdict == gate.VerdictAllowed), v.Command)
			fmt.Printf("  verdict: %s\n", v.Verdict)
			fmt.Printf("  risk:    %s\n", v.Risk)
			fmt.Printf("  %s\n", v.Explanation)
		}

		if flagRuleExitCode && v.Verdict != gate.VerdictAllowed {
			if v.Verdict == gate.VerdictDenied {
				os.Exit(2)
			}
			os.Exit(1)
		}
		return nil
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the rule set as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(buildEngine(cfg).Export(), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding rules: %w", err)
		}
		data = append(data, '\n')

		if flagRuleOutputFile != "" {
			if err := os.WriteFile(flagRuleOutputFile, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", flagRuleOutputFile, err)
			}
			output.New(output.Format(GetOutput())).Success("exported rules to " + flagRuleOutputFile)
			return nil
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a rule set, replacing the configured rules",
	Long: `Import rules previously produced by "rules export". The configured rule set
is replaced atomically: existing rules are cleared before the imported ones are
written. Reads stdin when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
		} else {
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
		}

		var export gate.RuleExport
		if err := json.Unmarshal(data, &export); err != nil {
			return fmt.Errorf("parsing rule export: %w", err)
		}

		path, err := rulesConfigPath()
		if err != nil {
			return err
		}
		allow := make([]config.RuleConfig, 0, len(export.AllowRules))
		for _, r := range export.AllowRules {
			allow = append(allow, config.RuleConfig{Pattern: r.Pattern, Description: r.Description})
		}
		deny := make([]config.RuleConfig, 0, len(export.DenyRules))
		for _, r := range export.DenyRules {
			deny = append(deny, config.RuleConfig{Pattern: r.Pattern, Description: r.Description})
		}
		if err := config.WriteRules(path, allow, deny); err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		out.Success(fmt.Sprintf("imported %d allow and %d deny rules into %s", len(allow), len(deny), path))
		return nil
	},
}

var rulesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all configured rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagRuleForce {
			return fmt.Errorf("refusing to clear rules without --force")
		}
		path, err := rulesConfigPath()
		if err != nil {
			return err
		}
		if err := config.WriteRules(path, nil, nil); err != nil {
			return err
		}
		output.New(output.Format(GetOutput())).Success("cleared all rules in " + path)
		return nil
	},
}

// rulesConfigPath is where rule edits land: the explicit --config file when
// given, otherwise the project config.
func rulesConfigPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	project, err := projectPath()
	if err != nil {
		return "", err
	}
	_, projectConfig := config.ConfigPaths(project, "")
	return projectConfig, nil
}

func ruleKind(allow bool) string {
	if allow {
		return "allow"
	}
	return "deny"
}
