package gate_test

import (
	"testing"

	"github.com/Dicklesworthstone/cmdgate/internal/gate"
	"github.com/Dicklesworthstone/cmdgate/internal/testutil"
)

func TestValidateScenarios(t *testing.T) {
	engine := testutil.MakeEngine(t,
		testutil.DenyRule("rm -rf*"),
		testutil.AllowRule("ls"),
	)

	tests := []struct {
		name    string
		command string
		verdict gate.Verdict
		risk    gate.RiskLevel
	}{
		{"destructive command denied", "rm -rf /", gate.VerdictDenied, gate.RiskCritical},
		{"listed command allowed", "ls", gate.VerdictAllowed, gate.RiskLow},
		{"unknown command needs approval", "echo hi", gate.VerdictRequiresApproval, gate.RiskLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := engine.Validate(tc.command)
			testutil.RequireEqual(t, tc.verdict, v.Verdict, "verdict")
			testutil.RequireEqual(t, tc.risk, v.Risk, "risk")
		})
	}
}

// A command matching both an allow and a deny rule is denied.
func TestDenyWins(t *testing.T) {
	engine := testutil.MakeEngine(t,
		testutil.AllowRule("git *"),
		testutil.DenyRule("git push --force*"),
	)

	v := engine.Validate("git push --force origin main")
	testutil.RequireEqual(t, gate.VerdictDenied, v.Verdict, "verdict")
	if v.MatchedRule == nil || v.MatchedRule.Pattern != "git push --force*" {
		t.Fatalf("expected deny rule to be reported, got %+v", v.MatchedRule)
	}
}

func TestValidateNothingAllowedByDefault(t *testing.T) {
	engine := gate.NewEngine()
	v := engine.Validate("true")
	testutil.RequireEqual(t, gate.VerdictRequiresApproval, v.Verdict, "verdict with no rules")
}

func TestValidateTrimsWhitespace(t *testing.T) {
	engine := testutil.MakeEngine(t, testutil.AllowRule("ls"))
	v := engine.Validate("   ls   ")
	testutil.RequireEqual(t, gate.VerdictAllowed, v.Verdict, "verdict")
	testutil.RequireEqual(t, "ls", v.Command, "trimmed command")
}

func TestValidateEmptyCommand(t *testing.T) {
	engine := testutil.MakeEngine(t, testutil.DenyRule("rm -rf*"))
	v := engine.Validate("   ")
	testutil.RequireEqual(t, gate.VerdictRequiresApproval, v.Verdict, "empty command verdict")
	testutil.RequireEqual(t, gate.RiskLow, v.Risk, "empty command risk")
}

// When a glob deny rule and a regex deny rule both match, the regex rule wins
// only for commands carrying a long-option token.
func TestDenyTieBreak(t *testing.T) {
	engine := testutil.MakeEngine(t,
		testutil.DenyRule("git push*"),
		testutil.DenyRule(`git\s+push`),
	)

	tests := []struct {
		name    string
		command string
		pattern string
	}{
		{"long option prefers regex", "git push --force", `git\s+push`},
		{"plain command prefers glob", "git push origin", "git push*"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := engine.Validate(tc.command)
			testutil.RequireEqual(t, gate.VerdictDenied, v.Verdict, "verdict")
			if v.MatchedRule == nil {
				t.Fatal("expected a matched rule")
			}
			testutil.RequireEqual(t, tc.pattern, v.MatchedRule.Pattern, "winning pattern")
		})
	}
}

func TestRemoveRule(t *testing.T) {
	engine := testutil.MakeEngine(t, testutil.AllowRule("ls"), testutil.DenyRule("rm -rf*"))

	testutil.RequireTrue(t, engine.RemoveRule("ls", true), "remove existing allow rule")
	testutil.RequireFalse(t, engine.RemoveRule("ls", true), "remove already-removed rule")
	testutil.RequireFalse(t, engine.RemoveRule("rm -rf*", true), "deny rule not in allow list")

	v := engine.Validate("ls")
	testutil.RequireEqual(t, gate.VerdictRequiresApproval, v.Verdict, "removed rule no longer matches")
}

func TestRuleStats(t *testing.T) {
	engine := testutil.MakeEngine(t,
		testutil.AllowRule("ls"),
		testutil.AllowRule("pwd"),
		testutil.DenyRule("rm -rf*"),
	)

	stats := engine.Stats()
	testutil.RequireEqual(t, 2, stats.AllowRules, "allow count")
	testutil.RequireEqual(t, 1, stats.DenyRules, "deny count")
	testutil.RequireEqual(t, 3, stats.Total, "total")
}

func TestExportImportRoundTrip(t *testing.T) {
	engine := testutil.MakeEngine(t,
		testutil.AllowRule("ls"),
		testutil.DenyRule("rm -rf*"),
	)

	export := engine.Export()
	testutil.RequireLen(t, export.AllowRules, 1, "exported allow rules")
	testutil.RequireLen(t, export.DenyRules, 1, "exported deny rules")

	fresh := gate.NewEngine()
	fresh.AddRule(testutil.AllowRule("stale-rule"))
	fresh.Import(export)

	// Import replaces, never merges.
	v := fresh.Validate("stale-rule")
	testutil.RequireEqual(t, gate.VerdictRequiresApproval, v.Verdict, "pre-import rule cleared")

	testutil.RequireEqual(t, gate.VerdictAllowed, fresh.Validate("ls").Verdict, "imported allow rule")
	testutil.RequireEqual(t, gate.VerdictDenied, fresh.Validate("rm -rf /tmp").Verdict, "imported deny rule")
}

// The Allow flag on imported rules is forced to match the list they arrive in.
func TestImportForcesAllowFlag(t *testing.T) {
	fresh := gate.NewEngine()
	fresh.Import(gate.RuleExport{
		DenyRules: []gate.Rule{{Pattern: "rm -rf*", Allow: true}},
	})

	v := fresh.Validate("rm -rf /")
	testutil.RequireEqual(t, gate.VerdictDenied, v.Verdict, "mislabeled rule lands in deny list")
}
