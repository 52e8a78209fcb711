package tui

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/cmdgate/internal/gate"
)

// confirmModel is a one-question yes/no prompt for a command approval.
type confirmModel struct {
	validation gate.Validation
	approved   bool
	answered   bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "y", "Y":
		m.approved = true
		m.answered = true
		return m, tea.Quit
	case "n", "N", "esc", "q", "enter", "ctrl+c":
		// Anything that is not an explicit yes declines.
		m.approved = false
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Command requires approval") + "\n\n")
	b.WriteString(commandStyle.Render(m.validation.Command) + "\n\n")
	b.WriteString("Risk: " + RiskBadge(m.validation.Risk) + "\n")
	if m.validation.Explanation != "" {
		b.WriteString(dimStyle.Render(m.validation.Explanation) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("y approve · n/esc decline") + "\n")
	return b.String()
}

// Confirm runs the full-screen approval prompt and reports the answer. Any
// failure to run the UI declines rather than erroring.
func Confirm(v gate.Validation) bool {
	p := tea.NewProgram(confirmModel{validation: v}, tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr)
		return false
	}
	m, ok := final.(confirmModel)
	return ok && m.approved
}

// IsInteractive reports whether both stdin and stderr are terminals, so the
// full-screen prompt can run.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// Prompt returns the best prompt for the current environment: the bubbletea
// confirm UI on a terminal, the plain line prompt otherwise. Set plain to
// force the line prompt.
func Prompt(plain bool) gate.PromptFunc {
	if !plain && IsInteractive() {
		return Confirm
	}
	return gate.TerminalPrompt()
}
