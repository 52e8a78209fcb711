// Package tui implements the interactive approval prompt.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/cmdgate/internal/gate"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	commandStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	dimStyle  = lipgloss.NewStyle().Faint(true)
	helpStyle = lipgloss.NewStyle().Faint(true).Italic(true)

	riskStyles = map[gate.RiskLevel]lipgloss.Style{
		gate.RiskLow:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		gate.RiskMedium:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		gate.RiskHigh:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		gate.RiskCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
)

// RiskBadge renders a colored severity label for a risk level.
func RiskBadge(r gate.RiskLevel) string {
	style, ok := riskStyles[r]
	if !ok {
		return strings.ToUpper(string(r))
	}
	return style.Render(strings.ToUpper(string(r)))
}
