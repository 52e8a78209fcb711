// Package testutil provides shared test helpers and fixtures for cmdgate.
//
// Philosophy:
// - Prefer real SQLite and real files (no mocks) for correctness.
// - Keep helpers small, composable, and deterministic.
// - Register cleanup via t.Cleanup so tests stay leak-free.
//
// Most packages should start with:
//
//	database := testutil.NewTestDB(t)
//	engine := testutil.MakeEngine(t, testutil.AllowRule("ls"), testutil.DenyRule("rm -rf*"))
package testutil
