package gate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// FormatApprovalPrompt renders the human-readable explanation shown before an
// approval question.
func FormatApprovalPrompt(v Validation) string {
	parts := []string{
		"Command requires approval:",
		"Command: " + v.Command,
		"Risk: " + string(v.Risk),
	}
	if v.Explanation != "" {
		parts = append(parts, "Reason: "+v.Explanation)
	}
	return strings.Join(parts, "\n")
}

// LinePrompt returns a PromptFunc that prints the approval explanation and
// reads one line from in. Case-insensitive "y" and "yes" approve; anything
// else, including end-of-input or an interrupt, declines.
func LinePrompt(in io.Reader, out io.Writer) PromptFunc {
	reader := bufio.NewReader(in)
	return func(v Validation) bool {
		fmt.Fprintln(out, FormatApprovalPrompt(v))
		fmt.Fprint(out, "Approve? [y/N]: ")

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			// Interrupted or closed input declines rather than erroring.
			fmt.Fprintln(out)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// TerminalPrompt returns the default interactive prompt reading from stdin.
func TerminalPrompt() PromptFunc {
	return LinePrompt(os.Stdin, os.Stderr)
}
