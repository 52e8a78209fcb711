// Package gate implements command validation against allow/deny rules and the
// approval flow for commands that match neither.
package gate

import (
	"fmt"
	"strings"
	"sync"
)

// Verdict is the tri-state outcome of validating a command.
type Verdict string

const (
	// VerdictAllowed means an allow rule matched; the command may run.
	VerdictAllowed Verdict = "allowed"
	// VerdictDenied means a deny rule matched; the command must never run.
	VerdictDenied Verdict = "denied"
	// VerdictRequiresApproval means no rule matched; a human must decide.
	VerdictRequiresApproval Verdict = "requires_approval"
)

// RiskLevel is an advisory severity label. It is ordered
// (low < medium < high < critical) and never gates the verdict by itself.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func riskRank(r RiskLevel) int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Higher reports whether r is strictly more severe than other.
func (r RiskLevel) Higher(other RiskLevel) bool {
	return riskRank(r) > riskRank(other)
}

// Rule pairs a glob-or-regex pattern with an allow/deny flag.
type Rule struct {
	// Pattern is matched against the whole command string. Patterns that look
	// like regexes (see IsRegexPattern) are matched as regexes anchored at the
	// start of the command; everything else uses shell-glob semantics.
	Pattern string `json:"pattern"`
	// Allow is true for allow rules, false for deny rules.
	Allow bool `json:"allow"`
	// Description explains the rule to a human reviewer.
	Description string `json:"description,omitempty"`
}

// Validation is an immutable snapshot produced by a single Validate call.
type Validation struct {
	Command     string    `json:"command"`
	Verdict     Verdict   `json:"verdict"`
	MatchedRule *Rule     `json:"matched_rule,omitempty"`
	Risk        RiskLevel `json:"risk"`
	Explanation string    `json:"explanation"`
}

// Engine matches commands against configured allow/deny rules.
//
// Deny rules always win: if any deny rule matches, the verdict is denied even
// when an allow rule also matches. A command matching no rule requires
// approval; nothing is ever allowed by default.
type Engine struct {
	mu    sync.RWMutex
	allow []Rule
	deny  []Rule
}

// NewEngine creates an engine with no rules.
func NewEngine() *Engine {
	return &Engine{}
}

// AddRule registers a rule. Allow rules are scanned in registration order.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.Allow {
		e.allow = append(e.allow, r)
	} else {
		e.deny = append(e.deny, r)
	}
}

// RemoveRule removes the first rule with the given pattern from the allow or
// deny list. It reports whether a rule was removed.
func (e *Engine) RemoveRule(pattern string, allow bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := &e.deny
	if allow {
		list = &e.allow
	}
	for i, r := range *list {
		if r.Pattern == pattern {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// ClearRules removes all rules.
func (e *Engine) ClearRules() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allow = nil
	e.deny = nil
}

// Rules returns copies of the allow and deny rule lists.
func (e *Engine) Rules() (allow, deny []Rule) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.allow...), append([]Rule(nil), e.deny...)
}

// RuleStats summarizes the loaded rule set.
type RuleStats struct {
	AllowRules int `json:"allow_rules"`
	DenyRules  int `json:"deny_rules"`
	Total      int `json:"total"`
}

// Stats returns counts of loaded rules.
func (e *Engine) Stats() RuleStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return RuleStats{
		AllowRules: len(e.allow),
		DenyRules:  len(e.deny),
		Total:      len(e.allow) + len(e.deny),
	}
}

// Validate classifies a command. Deny rules are checked first, then allow
// rules; a command matching neither requires approval with a risk level
// derived from the command text itself.
func (e *Engine) Validate(command string) Validation {
	command = strings.TrimSpace(command)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if v, ok := e.checkDeny(command); ok {
		return v
	}
	if v, ok := e.checkAllow(command); ok {
		return v
	}

	risk := classifyCommandRisk(command)
	return Validation{
		Command:     command,
		Verdict:     VerdictRequiresApproval,
		Risk:        risk,
		Explanation: fmt.Sprintf("Command not in allow list (risk: %s)", risk),
	}
}

func (e *Engine) checkDeny(command string) (Validation, bool) {
	var globRules, regexRules []Rule
	for _, r := range e.deny {
		if IsRegexPattern(r.Pattern) {
			regexRules = append(regexRules, r)
		} else {
			globRules = append(globRules, r)
		}
	}

	globMatch := firstMatch(command, globRules)
	regexMatch := firstMatch(command, regexRules)

	chosen := chooseDenyRule(command, globMatch, regexMatch)
	if chosen == nil {
		return Validation{}, false
	}

	rule := *chosen
	return Validation{
		Command:     command,
		Verdict:     VerdictDenied,
		MatchedRule: &rule,
		Risk:        classifyRuleRisk(rule),
		Explanation: "Command matches deny pattern: " + rule.Description,
	}, true
}

func (e *Engine) checkAllow(command string) (Validation, bool) {
	for _, r := range e.allow {
		if matchCommand(command, r.Pattern) {
			rule := r
			return Validation{
				Command:     command,
				Verdict:     VerdictAllowed,
				MatchedRule: &rule,
				Risk:        RiskLow,
				Explanation: "Command matches allow pattern: " + rule.Description,
			}, true
		}
	}
	return Validation{}, false
}

// chooseDenyRule resolves the case where both a glob deny rule and a regex
// deny rule match the same command. The regex rule wins when the command
// carries a long-option token (--); otherwise the glob rule wins. This
// tie-break is preserved as-is for compatibility with existing rule sets.
func chooseDenyRule(command string, globMatch, regexMatch *Rule) *Rule {
	if globMatch != nil && regexMatch != nil {
		if strings.Contains(command, "--") {
			return regexMatch
		}
		return globMatch
	}
	if globMatch != nil {
		return globMatch
	}
	return regexMatch
}

func firstMatch(command string, rules []Rule) *Rule {
	for _, r := range rules {
		if matchCommand(command, r.Pattern) {
			rule := r
			return &rule
		}
	}
	return nil
}

// RuleExport is the serialized form of a full rule set.
type RuleExport struct {
	AllowRules []Rule `json:"allow_patterns"`
	DenyRules  []Rule `json:"deny_patterns"`
}

// Export returns the current rule set in a serializable form.
func (e *Engine) Export() RuleExport {
	allow, deny := e.Rules()
	return RuleExport{AllowRules: allow, DenyRules: deny}
}

// Import atomically replaces the rule set: existing rules are cleared before
// the new ones are loaded. The Allow flag on each rule is forced to match the
// list it arrived in.
func (e *Engine) Import(data RuleExport) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.allow = nil
	e.deny = nil
	for _, r := range data.AllowRules {
		r.Allow = true
		e.allow = append(e.allow, r)
	}
	for _, r := range data.DenyRules {
		r.Allow = false
		e.deny = append(e.deny, r)
	}
}
