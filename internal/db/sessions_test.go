package db_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Dicklesworthstone/cmdgate/internal/db"
	"github.com/Dicklesworthstone/cmdgate/internal/testutil"
)

func TestCreateSessionGeneratesID(t *testing.T) {
	database := testutil.NewTestDB(t)
	s := testutil.MakeSession(t, database)

	if s.ID == "" {
		t.Fatal("expected generated session id")
	}
	if s.StartedAt.IsZero() || s.LastActiveAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestCreateSessionRequiresFields(t *testing.T) {
	database := testutil.NewTestDB(t)

	if err := database.CreateSession(&db.Session{ProjectPath: "/tmp/p"}); err == nil {
		t.Error("expected error for missing agent_name")
	}
	if err := database.CreateSession(&db.Session{AgentName: "a"}); err == nil {
		t.Error("expected error for missing project_path")
	}
}

func TestCreateSessionDuplicateActive(t *testing.T) {
	database := testutil.NewTestDB(t)
	s := testutil.MakeSession(t, database)

	dup := &db.Session{AgentName: s.AgentName, ProjectPath: s.ProjectPath}
	err := database.CreateSession(dup)
	if !errors.Is(err, db.ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}

	// Ending the first session frees the slot.
	testutil.RequireNoError(t, database.EndSession(s.ID), "end session")
	testutil.RequireNoError(t, database.CreateSession(dup), "create after end")
}

func TestGetSession(t *testing.T) {
	database := testutil.NewTestDB(t)
	s := testutil.MakeSession(t, database)

	got, err := database.GetSession(s.ID)
	testutil.RequireNoError(t, err, "get session")
	testutil.RequireEqual(t, s.AgentName, got.AgentName, "agent name")
	testutil.RequireEqual(t, s.ProjectPath, got.ProjectPath, "project path")

	if _, err := database.GetSession("missing"); !errors.Is(err, db.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetActiveSession(t *testing.T) {
	database := testutil.NewTestDB(t)
	s := testutil.MakeSession(t, database)

	got, err := database.GetActiveSession(s.AgentName, s.ProjectPath)
	testutil.RequireNoError(t, err, "get active session")
	testutil.RequireEqual(t, s.ID, got.ID, "session id")

	testutil.RequireNoError(t, database.EndSession(s.ID), "end session")
	if _, err := database.GetActiveSession(s.AgentName, s.ProjectPath); !errors.Is(err, db.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after end, got %v", err)
	}
}

func TestListActiveSessions(t *testing.T) {
	database := testutil.NewTestDB(t)
	s1 := testutil.MakeSession(t, database)
	s2 := testutil.MakeSession(t, database)

	sessions, err := database.ListActiveSessions()
	testutil.RequireNoError(t, err, "list")
	testutil.RequireLen(t, sessions, 2, "active sessions")

	testutil.RequireNoError(t, database.EndSession(s1.ID), "end s1")
	sessions, err = database.ListActiveSessions()
	testutil.RequireNoError(t, err, "list after end")
	testutil.RequireLen(t, sessions, 1, "active sessions after end")
	testutil.RequireEqual(t, s2.ID, sessions[0].ID, "remaining session")
}

func TestHeartbeatAndStaleSessions(t *testing.T) {
	database := testutil.NewTestDB(t)
	s := testutil.MakeSession(t, database)

	testutil.RequireNoError(t, database.UpdateSessionHeartbeat(s.ID), "heartbeat")

	stale, err := database.FindStaleSessions(time.Hour)
	testutil.RequireNoError(t, err, "find stale")
	testutil.RequireLen(t, stale, 0, "fresh session must not be stale")

	stale, err = database.FindStaleSessions(-time.Minute)
	testutil.RequireNoError(t, err, "find stale with past cutoff")
	testutil.RequireLen(t, stale, 1, "session stale with negative threshold")

	if err := database.UpdateSessionHeartbeat("missing"); !errors.Is(err, db.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestEndSessionTwice(t *testing.T) {
	database := testutil.NewTestDB(t)
	s := testutil.MakeSession(t, database)

	testutil.RequireNoError(t, database.EndSession(s.ID), "first end")
	if err := database.EndSession(s.ID); !errors.Is(err, db.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second end, got %v", err)
	}

	got, err := database.GetSession(s.ID)
	testutil.RequireNoError(t, err, "get ended session")
	if got.EndedAt == nil {
		t.Fatal("expected ended_at to be set")
	}
}
