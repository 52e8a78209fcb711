// Package store persists command approvals across three lifetimes: once
// (consumed on first use), session (process lifetime, optionally keyed by a
// session id), and persistent (durable across restarts).
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gobwas/glob"
)

// Scope is the lifetime class of an approval.
type Scope string

const (
	// ScopeOnce approvals are valid for exactly one consumption.
	ScopeOnce Scope = "once"
	// ScopeSession approvals live for the process lifetime and vanish on restart.
	ScopeSession Scope = "session"
	// ScopePersistent approvals are written to durable storage.
	ScopePersistent Scope = "persistent"
)

// ParseScope parses a scope label.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeOnce:
		return ScopeOnce, nil
	case ScopeSession:
		return ScopeSession, nil
	case ScopePersistent:
		return ScopePersistent, nil
	default:
		return "", fmt.Errorf("unknown approval scope %q", s)
	}
}

// Record is one stored approval.
type Record struct {
	// Pattern is the approved command string, or a glob-capable pattern for
	// session- and persistent-scoped entries.
	Pattern   string `json:"command"`
	Scope     Scope  `json:"scope"`
	SessionID string `json:"session_id,omitempty"`
}

// Backend is the pluggable persistence strategy behind a Store. Only
// persistent-scoped patterns ever reach a backend.
type Backend interface {
	// Load returns the persistent patterns currently on disk.
	Load() ([]string, error)
	// Save replaces the persistent patterns on disk.
	Save(patterns []string) error
}

// Stats summarizes stored approvals by scope.
type Stats struct {
	Total   int           `json:"total"`
	ByScope map[Scope]int `json:"by_scope"`
}

// Store holds approvals for all three scopes behind a single mutex, so the
// read-then-delete sequence consuming a once approval is atomic even with
// concurrent callers. The zero value is not usable; use NewMemory or NewFile.
type Store struct {
	mu         sync.Mutex
	exact      map[string]Scope    // once approvals and unkeyed session approvals
	sessions   map[string][]string // session id -> approved patterns
	persistent []string            // glob-capable patterns, durable when backend is set
	backend    Backend
	logger     *log.Logger
}

// NewMemory creates a purely in-process store.
func NewMemory() *Store {
	return &Store{
		exact:    make(map[string]Scope),
		sessions: make(map[string][]string),
		logger:   log.Default().WithPrefix("store"),
	}
}

// NewWithBackend creates a store over an arbitrary persistence backend.
// Records already in the backend are loaded eagerly; a backend that fails to
// load degrades to an empty record set rather than failing construction.
func NewWithBackend(b Backend) *Store {
	s := NewMemory()
	s.backend = b

	patterns, err := b.Load()
	if err != nil {
		s.logger.Warn("resetting approval store: unreadable persistent records", "err", err)
		patterns = nil
	}
	s.persistent = patterns
	return s
}

// Add records an approval. Adding an identical pattern at the same scope is
// idempotent. Persistent approvals are written through to the backend; any
// write error propagates so the caller can fail closed.
func (s *Store) Add(pattern string, scope Scope, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch scope {
	case ScopePersistent:
		if !containsString(s.persistent, pattern) {
			s.persistent = append(s.persistent, pattern)
		}
		return s.saveLocked()
	case ScopeSession:
		if sessionID != "" {
			if !containsString(s.sessions[sessionID], pattern) {
				s.sessions[sessionID] = append(s.sessions[sessionID], pattern)
			}
			return nil
		}
		s.exact[pattern] = ScopeSession
		return nil
	case ScopeOnce:
		s.exact[pattern] = ScopeOnce
		return nil
	default:
		return fmt.Errorf("unknown approval scope %q", scope)
	}
}

// Has reports whether the command is covered by a stored approval. It never
// consumes anything; use Take for the consume-on-read check.
func (s *Store) Has(command, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookupLocked(command, sessionID)
	return ok
}

// Take reports whether the command is covered by a stored approval, deleting
// a once-scoped record as part of the same call. An immediately following
// Take for the same command reports false unless another approval covers it.
func (s *Store) Take(command, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.lookupLocked(command, sessionID)
	if ok && scope == ScopeOnce {
		delete(s.exact, command)
	}
	return ok
}

// lookupLocked resolves a command against all three layers. Durable and
// session patterns match by exact string equality or glob; exact records
// match by key only. Caller must hold s.mu.
func (s *Store) lookupLocked(command, sessionID string) (Scope, bool) {
	for _, p := range s.persistent {
		if matchApproval(command, p) {
			return ScopePersistent, true
		}
	}
	if sessionID != "" {
		for _, p := range s.sessions[sessionID] {
			if matchApproval(command, p) {
				return ScopeSession, true
			}
		}
	}
	if scope, ok := s.exact[command]; ok {
		return scope, true
	}
	return "", false
}

// Remove deletes a single approval pattern from every layer it appears in.
func (s *Store) Remove(pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.exact, pattern)
	for id, patterns := range s.sessions {
		s.sessions[id] = removeString(patterns, pattern)
		if len(s.sessions[id]) == 0 {
			delete(s.sessions, id)
		}
	}

	if containsString(s.persistent, pattern) {
		s.persistent = removeString(s.persistent, pattern)
		return s.saveLocked()
	}
	return nil
}

// Clear empties the in-memory record set. It never deletes durable data: a
// store reconstructed from the same backend still sees the old persistent
// records.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exact = make(map[string]Scope)
	s.sessions = make(map[string][]string)
	s.persistent = nil
}

// ClearSessionScoped removes every session- and once-scoped record, leaving
// persistent records untouched.
func (s *Store) ClearSessionScoped() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exact = make(map[string]Scope)
	s.sessions = make(map[string][]string)
}

// CleanupSession drops all approvals keyed to one session id.
func (s *Store) CleanupSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// List returns all stored approvals in deterministic order: persistent, then
// session-keyed, then exact records.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.persistent)+len(s.exact))
	for _, p := range sortedStrings(s.persistent) {
		records = append(records, Record{Pattern: p, Scope: ScopePersistent})
	}
	for _, id := range sortedKeys(s.sessions) {
		for _, p := range sortedStrings(s.sessions[id]) {
			records = append(records, Record{Pattern: p, Scope: ScopeSession, SessionID: id})
		}
	}
	for _, p := range sortedKeys(s.exact) {
		records = append(records, Record{Pattern: p, Scope: s.exact[p]})
	}
	return records
}

// Stats returns approval counts by scope.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{ByScope: map[Scope]int{
		ScopeOnce:       0,
		ScopeSession:    0,
		ScopePersistent: len(s.persistent),
	}}
	for _, patterns := range s.sessions {
		st.ByScope[ScopeSession] += len(patterns)
	}
	for _, scope := range s.exact {
		st.ByScope[scope]++
	}
	st.Total = st.ByScope[ScopeOnce] + st.ByScope[ScopeSession] + st.ByScope[ScopePersistent]
	return st
}

// Close flushes and stops the backend if it supports closing.
func (s *Store) Close() error {
	if c, ok := s.backend.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) saveLocked() error {
	if s.backend == nil {
		return nil
	}
	snapshot := append([]string(nil), s.persistent...)
	if err := s.backend.Save(snapshot); err != nil {
		return fmt.Errorf("saving persistent approvals: %w", err)
	}
	return nil
}

// matchApproval matches a command against an approval pattern: exact string
// equality, or a glob match when the pattern carries a wildcard.
func matchApproval(command, pattern string) bool {
	if pattern == command {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return false
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(command)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func sortedStrings(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
