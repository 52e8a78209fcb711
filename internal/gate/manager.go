package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Dicklesworthstone/cmdgate/internal/store"
)

// SafetyMode controls how the manager treats commands that require approval.
type SafetyMode string

const (
	// ModeAuto runs pre-approved commands without prompting.
	ModeAuto SafetyMode = "auto"
	// ModeConfirm prompts for every command that is not explicitly allowed,
	// even when a stored approval covers it.
	ModeConfirm SafetyMode = "confirm"
	// ModeReadOnly refuses everything that is not explicitly allowed.
	ModeReadOnly SafetyMode = "readonly"
)

// ParseSafetyMode parses a safety mode label.
func ParseSafetyMode(s string) (SafetyMode, error) {
	switch SafetyMode(s) {
	case ModeAuto, ModeConfirm, ModeReadOnly:
		return SafetyMode(s), nil
	default:
		return "", fmt.Errorf("unknown safety mode %q", s)
	}
}

// PromptFunc relays an approval request to a human and reports their answer.
// Implementations must treat I/O interruption as a decline, never an error.
type PromptFunc func(Validation) bool

// Decision is one audit-trail entry describing an Authorize outcome.
type Decision struct {
	Command        string    `json:"command"`
	Verdict        Verdict   `json:"verdict"`
	Risk           RiskLevel `json:"risk"`
	MatchedPattern string    `json:"matched_pattern,omitempty"`
	Approved       bool      `json:"approved"`
	SessionID      string    `json:"session_id,omitempty"`
	At             time.Time `json:"at"`
}

// AuditSink receives a record of every Authorize outcome.
type AuditSink interface {
	RecordDecision(d Decision) error
}

// Manager combines engine verdicts with stored approvals and drives the
// interactive confirmation flow.
type Manager struct {
	engine *Engine
	store  *store.Store
	prompt PromptFunc
	audit  AuditSink
	logger *log.Logger

	modeMu sync.RWMutex
	mode   SafetyMode
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPrompt sets the prompt used for interactive approval requests.
func WithPrompt(p PromptFunc) ManagerOption {
	return func(m *Manager) { m.prompt = p }
}

// WithMode sets the initial safety mode.
func WithMode(mode SafetyMode) ManagerOption {
	return func(m *Manager) { m.mode = mode }
}

// WithAudit attaches an audit sink recording every Authorize outcome.
func WithAudit(sink AuditSink) ManagerOption {
	return func(m *Manager) { m.audit = sink }
}

// WithLogger sets the manager logger.
func WithLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a manager over an engine and an approval store.
func NewManager(engine *Engine, st *store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		engine: engine,
		store:  st,
		mode:   ModeConfirm,
		logger: log.Default().WithPrefix("gate"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.prompt == nil {
		m.prompt = TerminalPrompt()
	}
	return m
}

// Mode returns the current safety mode.
func (m *Manager) Mode() SafetyMode {
	m.modeMu.RLock()
	defer m.modeMu.RUnlock()
	return m.mode
}

// SetMode changes the safety mode.
func (m *Manager) SetMode(mode SafetyMode) {
	m.modeMu.Lock()
	defer m.modeMu.Unlock()
	m.mode = mode
}

// Validate classifies a command without consulting stored approvals.
func (m *Manager) Validate(command string) Validation {
	return m.engine.Validate(command)
}

// Covered reports whether a stored approval covers the validated command
// without consuming anything. Use Check inside the decision flow; Covered is
// for pure queries.
func (m *Manager) Covered(v Validation, sessionID string) bool {
	return m.store.Has(v.Command, sessionID)
}

// Check reports whether a stored approval covers the validated command. A
// once-scoped approval is consumed as part of this call: the check that
// reports it approved also removes it.
func (m *Manager) Check(v Validation, sessionID string) bool {
	return m.store.Take(v.Command, sessionID)
}

// Grant records an approval for the validated command at the given scope.
func (m *Manager) Grant(v Validation, scope store.Scope, sessionID string) error {
	return m.GrantPattern(v.Command, scope, sessionID)
}

// GrantPattern records an approval for a literal command or glob pattern.
func (m *Manager) GrantPattern(pattern string, scope store.Scope, sessionID string) error {
	if err := m.store.Add(pattern, scope, sessionID); err != nil {
		return err
	}
	m.logger.Debug("approval granted", "pattern", pattern, "scope", scope, "session", sessionID)
	return nil
}

// RequestInteractive asks the configured prompt to approve the command.
func (m *Manager) RequestInteractive(v Validation) bool {
	if m.prompt == nil {
		return false
	}
	return m.prompt(v)
}

// AuthorizeOptions configures a single Authorize call.
type AuthorizeOptions struct {
	// SessionID keys session-scoped approval lookups.
	SessionID string
	// GrantScope is the scope recorded when the interactive prompt approves
	// the command. Leave empty (or ScopeOnce) to approve this run only
	// without storing anything.
	GrantScope store.Scope
}

// Authorize runs the full decision flow for a command: validate, consult the
// approval store, and fall back to the interactive prompt. Denied and allowed
// verdicts are terminal; denied commands never reach the approval flow and
// allowed commands never prompt.
//
// A non-nil error means the approval state is unknown (for example a failed
// durable write); callers must treat that as a refusal.
func (m *Manager) Authorize(command string, opts AuthorizeOptions) (bool, Validation, error) {
	v := m.engine.Validate(command)
	approved, err := m.decide(v, opts)

	if m.audit != nil {
		d := Decision{
			Command:   v.Command,
			Verdict:   v.Verdict,
			Risk:      v.Risk,
			Approved:  approved && err == nil,
			SessionID: opts.SessionID,
			At:        time.Now().UTC(),
		}
		if v.MatchedRule != nil {
			d.MatchedPattern = v.MatchedRule.Pattern
		}
		if auditErr := m.audit.RecordDecision(d); auditErr != nil {
			m.logger.Error("recording decision", "err", auditErr)
		}
	}

	if err != nil {
		return false, v, err
	}
	m.logger.Debug("authorize", "command", v.Command, "verdict", v.Verdict, "risk", v.Risk, "approved", approved)
	return approved, v, nil
}

func (m *Manager) decide(v Validation, opts AuthorizeOptions) (bool, error) {
	switch v.Verdict {
	case VerdictDenied:
		return false, nil
	case VerdictAllowed:
		return true, nil
	}

	mode := m.Mode()
	if mode == ModeReadOnly {
		return false, nil
	}
	if mode != ModeConfirm && m.Check(v, opts.SessionID) {
		return true, nil
	}
	if !m.RequestInteractive(v) {
		return false, nil
	}
	if opts.GrantScope != "" && opts.GrantScope != store.ScopeOnce {
		if err := m.Grant(v, opts.GrantScope, opts.SessionID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ClearSessionScoped removes every session- and once-scoped approval,
// leaving persistent approvals untouched. Invoked when a session ends.
func (m *Manager) ClearSessionScoped() {
	m.store.ClearSessionScoped()
}

// CleanupSession drops all approvals keyed to one session id.
func (m *Manager) CleanupSession(sessionID string) {
	m.store.CleanupSession(sessionID)
}

// Stats returns approval counts by scope.
func (m *Manager) Stats() store.Stats {
	return m.store.Stats()
}

// Export serializes the full approval set for transfer between processes.
func (m *Manager) Export() []store.Record {
	return m.store.List()
}

// Import loads approvals produced by Export. A record with an unrecognized
// scope is imported at session scope rather than failing the whole import.
func (m *Manager) Import(records []store.Record) error {
	for _, r := range records {
		scope, err := store.ParseScope(string(r.Scope))
		if err != nil {
			m.logger.Warn("importing approval with unknown scope as session", "pattern", r.Pattern, "scope", r.Scope)
			scope = store.ScopeSession
		}
		if err := m.store.Add(r.Pattern, scope, r.SessionID); err != nil {
			return fmt.Errorf("importing approval %q: %w", r.Pattern, err)
		}
	}
	return nil
}
