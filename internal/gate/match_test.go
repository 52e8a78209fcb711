package gate

import "testing"

func TestIsRegexPattern(t *testing.T) {
	tests := []struct {
		pattern string
		expect  bool
	}{
		{"^git push", true},
		{"rm -rf /$", true},
		{"git (pull|push)", true},
		{"ls [abc]", true},
		{"a{1,3}", true},
		{"foo+", true},
		{"what?", true},
		{`rm\s+`, true},
		{"git push*", false},
		{"ls", false},
		{"npm install *", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.pattern, func(t *testing.T) {
			if got := IsRegexPattern(tc.pattern); got != tc.expect {
				t.Errorf("IsRegexPattern(%q) = %v, want %v", tc.pattern, got, tc.expect)
			}
		})
	}
}

func TestMatchCommandRegex(t *testing.T) {
	tests := []struct {
		name    string
		command string
		pattern string
		expect  bool
	}{
		{"anchored at start", "git push --force origin", `git\s+push`, true},
		{"no match mid-string only", "echo git push", `^git push`, false},
		{"prefix match suffices", "sudo rm -rf /tmp", `sudo\s+rm`, true},
		{"alternation", "git pull origin", `git (pull|push)`, true},
		{"dollar anchor", "ls", `ls$`, true},
		{"dollar anchor with trailing text", "ls -la", `ls$`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := matchCommand(tc.command, tc.pattern); got != tc.expect {
				t.Errorf("matchCommand(%q, %q) = %v, want %v", tc.command, tc.pattern, got, tc.expect)
			}
		})
	}
}

func TestMatchCommandGlob(t *testing.T) {
	tests := []struct {
		name    string
		command string
		pattern string
		expect  bool
	}{
		{"star suffix", "rm -rf /home", "rm -rf*", true},
		{"whole string must match", "sudo rm -rf /", "rm -rf*", false},
		{"star crosses slashes", "npm install lodash/sub", "npm install *", true},
		{"exact literal", "ls", "ls", true},
		{"question mark", "ls -a", "ls -?", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := matchCommand(tc.command, tc.pattern); got != tc.expect {
				t.Errorf("matchCommand(%q, %q) = %v, want %v", tc.command, tc.pattern, got, tc.expect)
			}
		})
	}
}

// A pattern that sniffs as a regex but fails to compile degrades to glob
// matching for that rule only.
func TestMatchCommandInvalidRegexFallsBackToGlob(t *testing.T) {
	if !matchCommand("rm (unclosed", "rm (unclosed") {
		t.Error("invalid regex should fall back to glob and match itself literally")
	}
	if matchCommand("rm something-else", "rm (unclosed") {
		t.Error("invalid regex fallback should not match a different command")
	}
}
