package gate

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// regexChars are the characters whose presence marks a pattern as a regex
// rather than a shell glob.
const regexChars = `()[]{}+?\`

// IsRegexPattern reports whether a rule pattern should be matched as a
// regular expression. A pattern counts as a regex when it starts with `^`,
// ends with `$`, or contains any of `()[]{}+?\`. Everything else is matched
// with shell-glob semantics.
func IsRegexPattern(pattern string) bool {
	return strings.HasPrefix(pattern, "^") ||
		strings.HasSuffix(pattern, "$") ||
		strings.ContainsAny(pattern, regexChars)
}

// matchCommand matches a command against a rule pattern. Regex patterns are
// anchored at the start of the command; a pattern that fails to compile as a
// regex silently degrades to glob matching for that rule only.
func matchCommand(command, pattern string) bool {
	if IsRegexPattern(pattern) {
		re, err := regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			return matchGlob(command, pattern)
		}
		return re.MatchString(command)
	}
	return matchGlob(command, pattern)
}

// matchGlob matches the whole command against a shell glob (`*`, `?`,
// character classes). A pattern that fails to compile falls back to literal
// string equality.
func matchGlob(command, pattern string) bool {
	g, err := glob.Compile(pattern)
	if err != nil {
		return command == pattern
	}
	return g.Match(command)
}
