package db_test

import (
	"testing"
	"time"

	"github.com/Dicklesworthstone/cmdgate/internal/gate"
	"github.com/Dicklesworthstone/cmdgate/internal/testutil"
)

func TestRecordAndListDecisions(t *testing.T) {
	database := testutil.NewTestDB(t)

	first := gate.Decision{
		Command:        "rm -rf /",
		Verdict:        gate.VerdictDenied,
		Risk:           gate.RiskCritical,
		MatchedPattern: "rm -rf*",
		Approved:       false,
		SessionID:      "s1",
	}
	second := gate.Decision{
		Command:  "ls",
		Verdict:  gate.VerdictAllowed,
		Risk:     gate.RiskLow,
		Approved: true,
	}
	testutil.RequireNoError(t, database.RecordDecision(first), "record first")
	testutil.RequireNoError(t, database.RecordDecision(second), "record second")

	decisions, err := database.ListDecisions(0)
	testutil.RequireNoError(t, err, "list")
	testutil.RequireLen(t, decisions, 2, "decision count")

	// Newest first.
	testutil.RequireEqual(t, "ls", decisions[0].Command, "newest command")
	testutil.RequireTrue(t, decisions[0].Approved, "approved flag")
	testutil.RequireEqual(t, "rm -rf /", decisions[1].Command, "older command")
	testutil.RequireEqual(t, gate.VerdictDenied, decisions[1].Verdict, "verdict")
	testutil.RequireEqual(t, gate.RiskCritical, decisions[1].Risk, "risk")
	testutil.RequireEqual(t, "rm -rf*", decisions[1].MatchedPattern, "matched pattern")
	testutil.RequireEqual(t, "s1", decisions[1].SessionID, "session id")
	if decisions[1].At.IsZero() {
		t.Fatal("expected recorded timestamp")
	}
}

func TestListDecisionsLimit(t *testing.T) {
	database := testutil.NewTestDB(t)
	for i := 0; i < 5; i++ {
		d := gate.Decision{Command: "echo hi", Verdict: gate.VerdictRequiresApproval, Risk: gate.RiskLow}
		testutil.RequireNoError(t, database.RecordDecision(d), "record")
	}

	decisions, err := database.ListDecisions(3)
	testutil.RequireNoError(t, err, "list with limit")
	testutil.RequireLen(t, decisions, 3, "limited count")
}

func TestPruneDecisions(t *testing.T) {
	database := testutil.NewTestDB(t)

	old := gate.Decision{
		Command: "echo old",
		Verdict: gate.VerdictRequiresApproval,
		Risk:    gate.RiskLow,
		At:      time.Now().UTC().Add(-48 * time.Hour),
	}
	fresh := gate.Decision{
		Command: "echo fresh",
		Verdict: gate.VerdictRequiresApproval,
		Risk:    gate.RiskLow,
	}
	testutil.RequireNoError(t, database.RecordDecision(old), "record old")
	testutil.RequireNoError(t, database.RecordDecision(fresh), "record fresh")

	n, err := database.PruneDecisions(time.Now().UTC().Add(-24 * time.Hour))
	testutil.RequireNoError(t, err, "prune")
	testutil.RequireEqual(t, int64(1), n, "pruned count")

	decisions, err := database.ListDecisions(0)
	testutil.RequireNoError(t, err, "list after prune")
	testutil.RequireLen(t, decisions, 1, "remaining count")
	testutil.RequireEqual(t, "echo fresh", decisions[0].Command, "survivor")
}
