package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/Dicklesworthstone/cmdgate/internal/db"
	"github.com/Dicklesworthstone/cmdgate/internal/gate"
	"github.com/Dicklesworthstone/cmdgate/internal/store"
)

// AllowRule builds an allow rule with a placeholder description.
func AllowRule(pattern string) gate.Rule {
	return gate.Rule{Pattern: pattern, Allow: true, Description: "allow " + pattern}
}

// DenyRule builds a deny rule with a placeholder description.
func DenyRule(pattern string) gate.Rule {
	return gate.Rule{Pattern: pattern, Allow: false, Description: "deny " + pattern}
}

// MakeEngine creates an engine preloaded with rules.
func MakeEngine(t *testing.T, rules ...gate.Rule) *gate.Engine {
	t.Helper()

	engine := gate.NewEngine()
	for _, r := range rules {
		engine.AddRule(r)
	}
	return engine
}

// NewTestFileStore creates a file-backed store under a temp dir and returns
// it with its backing path, so tests can reconstruct a store from the same
// file.
func NewTestFileStore(t *testing.T) (*store.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "approvals.json")
	s := store.NewFile(path)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, path
}

// StaticPrompt returns a prompt that always answers the same way and counts
// how often it was asked.
func StaticPrompt(answer bool, asked *int) gate.PromptFunc {
	return func(gate.Validation) bool {
		if asked != nil {
			*asked++
		}
		return answer
	}
}

// SessionOption customizes a test session.
type SessionOption func(*db.Session)

// SessionWithAgentName overrides the generated agent name.
func SessionWithAgentName(name string) SessionOption {
	return func(s *db.Session) { s.AgentName = name }
}

// MakeSession creates and inserts a session into the DB.
func MakeSession(t *testing.T, database *db.DB, opts ...SessionOption) *db.Session {
	t.Helper()

	s := &db.Session{
		ID:          "sess-" + randHex(6),
		AgentName:   "Agent-" + randHex(4),
		Program:     "test",
		ProjectPath: filepath.Join(t.TempDir(), "project"),
	}
	for _, opt := range opts {
		opt(s)
	}
	RequireNoError(t, database.CreateSession(s), "create session")
	return s
}

func randHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)[:n]
}
