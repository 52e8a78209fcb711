package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/cmdgate/internal/gate"
	"github.com/Dicklesworthstone/cmdgate/internal/output"
	"github.com/Dicklesworthstone/cmdgate/internal/tui"
)

var (
	flagCheckExitCode bool
	flagCheckPrompt   bool
	flagCheckScope    string
)

func init() {
	checkCmd.Flags().BoolVar(&flagCheckExitCode, "exit-code", false, "exit 1 when approval is needed, 2 when denied")
	checkCmd.Flags().BoolVar(&flagCheckPrompt, "prompt", false, "run the full interactive approval flow")
	checkCmd.Flags().StringVar(&flagCheckScope, "scope", "", "approval scope recorded on prompt approval: once, session, persistent")

	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <command>",
	Short: "Check whether a command may run",
	Long: `Check a command against the configured allow/deny rules.

Without --prompt this is a pure query: the verdict, risk level, and whether a
stored approval already covers the command are reported, and nothing is
consumed or recorded.

With --prompt the full decision flow runs: denied commands are refused, allowed
commands pass, and anything else asks for interactive approval. An approval
given at the prompt is stored at --scope (or the configured default scope).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")
	out := output.New(output.Format(GetOutput()))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, cleanup, err := newManager(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var (
		v        gate.Validation
		approved bool
		covered  bool
	)
	if flagCheckPrompt {
		scope, err := defaultGrantScope(cfg, flagCheckScope)
		if err != nil {
			return err
		}
		approved, v, err = mgr.Authorize(command, gate.AuthorizeOptions{
			SessionID:  GetSessionID(),
			GrantScope: scope,
		})
		if err != nil {
			return err
		}
	} else {
		v = mgr.Validate(command)
		covered = mgr.Covered(v, GetSessionID())
		approved = v.Verdict == gate.VerdictAllowed ||
			(v.Verdict == gate.VerdictRequiresApproval && covered)
	}

	payload := map[string]any{
		"command":     v.Command,
		"verdict":     v.Verdict,
		"risk":        v.Risk,
		"explanation": v.Explanation,
		"approved":    approved,
	}
	if !flagCheckPrompt {
		payload["stored_approval"] = covered
	}
	if v.MatchedRule != nil {
		payload["matched_pattern"] = v.MatchedRule.Pattern
	}

	switch GetOutput() {
	case "json", "yaml":
		if err := out.Write(payload); err != nil {
			return err
		}
	default:
		fmt.Printf("%s  %s\n", verdictMark(v.Verdict, approved), v.Command)
		fmt.Printf("  verdict: %s\n", v.Verdict)
		fmt.Printf("  risk:    %s\n", tui.RiskBadge(v.Risk))
		if v.MatchedRule != nil {
			fmt.Printf("  rule:    %s\n", v.MatchedRule.Pattern)
		}
		if !flagCheckPrompt && v.Verdict == gate.VerdictRequiresApproval {
			fmt.Printf("  stored approval: %v\n", covered)
		}
		fmt.Printf("  %s\n", v.Explanation)
	}

	if flagCheckExitCode && !approved {
		if v.Verdict == gate.VerdictDenied {
			os.Exit(2)
		}
		os.Exit(1)
	}
	return nil
}

func verdictMark(verdict gate.Verdict, approved bool) string {
	switch {
	case verdict == gate.VerdictDenied:
		return "✗"
	case approved:
		return "✓"
	default:
		return "?"
	}
}
