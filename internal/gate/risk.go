package gate

import (
	"regexp"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Rule-text risk keywords, most severe first. A deny rule's risk is derived
// from the text of its pattern, not from the command that matched it.
var (
	ruleRiskCritical = []string{
		"rm -rf",
		"format",
		"dd if=",
		"sudo rm",
		"del /s",
		"rmdir /s",
		"> /dev/",
		"chmod 777",
		"chown",
		"mkfs",
	}
	ruleRiskHigh   = []string{"sudo", "rm", "del", "rmdir", "chmod", "mv"}
	ruleRiskMedium = []string{"git reset", "git clean", "npm install", "pip install"}
)

// classifyRuleRisk assigns a risk level to a matched rule by scanning its
// pattern text for known-destructive keywords.
func classifyRuleRisk(r Rule) RiskLevel {
	text := strings.ToLower(r.Pattern)

	for _, kw := range ruleRiskCritical {
		if strings.Contains(text, kw) {
			return RiskCritical
		}
	}
	for _, kw := range ruleRiskHigh {
		if strings.Contains(text, kw) {
			return RiskHigh
		}
	}
	for _, kw := range ruleRiskMedium {
		if strings.Contains(text, kw) {
			return RiskMedium
		}
	}
	return RiskLow
}

// Raw-command risk patterns, matched against the lowercased command text.
// This ladder is tuned independently of the rule-text keywords above.
var (
	commandRiskCritical = compileRiskPatterns(
		`rm\s+.*-rf`,
		`sudo\s+rm`,
		`format\s+`,
		`dd\s+if=`,
		`del\s+.*/s`,
		`rmdir\s+.*/s`,
		`>\s*/dev/`,
		`mkfs\.`,
	)
	commandRiskHigh = compileRiskPatterns(
		`sudo\s+`,
		`rm\s+`,
		`del\s+`,
		`rmdir\s+`,
		`chmod\s+`,
		`chown\s+`,
		`mv\s+.*\s+/`,
		`cp\s+.*>\s*/`,
	)
	commandRiskMedium = compileRiskPatterns(
		`git\s+reset`,
		`git\s+clean`,
		`npm\s+install`,
		`pip\s+install`,
		`curl.*\|\s*sh`,
		`wget.*\|\s*sh`,
	)
)

func compileRiskPatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// classifyCommandRisk assesses a command that matched no rule. Compound
// commands are split into segments and the highest segment risk wins, so a
// dangerous command cannot hide behind a harmless prefix.
func classifyCommandRisk(command string) RiskLevel {
	risk := rawCommandRisk(command)
	for _, seg := range splitSegments(command) {
		if r := rawCommandRisk(seg); r.Higher(risk) {
			risk = r
		}
	}
	return risk
}

func rawCommandRisk(command string) RiskLevel {
	lower := strings.ToLower(command)

	for _, re := range commandRiskCritical {
		if re.MatchString(lower) {
			return RiskCritical
		}
	}
	for _, re := range commandRiskHigh {
		if re.MatchString(lower) {
			return RiskHigh
		}
	}
	for _, re := range commandRiskMedium {
		if re.MatchString(lower) {
			return RiskMedium
		}
	}
	return RiskLow
}

// shell control operators that separate segments of a compound command.
var segmentOperators = map[string]bool{
	"&&": true,
	"||": true,
	";":  true,
	"|":  true,
	"&":  true,
}

// splitSegments tokenizes a compound command and rejoins the tokens between
// shell control operators. Quoted operators stay inside their segment. A
// command that fails to tokenize (unbalanced quotes) is treated as a single
// opaque segment and assessed from its raw text only.
func splitSegments(command string) []string {
	tokens, err := shellwords.Parse(command)
	if err != nil || len(tokens) == 0 {
		return nil
	}

	var segments []string
	var current []string
	for _, tok := range tokens {
		if segmentOperators[tok] {
			if len(current) > 0 {
				segments = append(segments, strings.Join(current, " "))
				current = nil
			}
			continue
		}
		current = append(current, tok)
	}
	if len(current) > 0 {
		segments = append(segments, strings.Join(current, " "))
	}

	if len(segments) <= 1 {
		return nil
	}
	return segments
}
