package gate_test

import (
	"strings"
	"testing"

	"github.com/Dicklesworthstone/cmdgate/internal/gate"
	"github.com/Dicklesworthstone/cmdgate/internal/testutil"
)

func TestLinePromptAnswers(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect bool
	}{
		{"lowercase y", "y\n", true},
		{"yes", "yes\n", true},
		{"uppercase yes", "YES\n", true},
		{"padded y", "  y  \n", true},
		{"n", "n\n", false},
		{"empty line", "\n", false},
		{"garbage", "sure why not\n", false},
		{"closed input declines", "", false},
	}

	v := gate.Validation{Command: "echo hi", Verdict: gate.VerdictRequiresApproval, Risk: gate.RiskLow}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out strings.Builder
			prompt := gate.LinePrompt(strings.NewReader(tc.input), &out)
			testutil.RequireEqual(t, tc.expect, prompt(v), "answer")
		})
	}
}

func TestFormatApprovalPrompt(t *testing.T) {
	v := gate.Validation{
		Command:     "echo hi",
		Verdict:     gate.VerdictRequiresApproval,
		Risk:        gate.RiskMedium,
		Explanation: "Command not in allow list (risk: medium)",
	}

	text := gate.FormatApprovalPrompt(v)
	for _, want := range []string{"echo hi", "medium", "Command not in allow list"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt text missing %q:\n%s", want, text)
		}
	}
}
