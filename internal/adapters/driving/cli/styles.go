package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// Palette shared by command output.
var (
	colourPrimary = lipgloss.Color("#7C3AED")
	colourMuted   = lipgloss.Color("#6C7086")
	colourSuccess = lipgloss.Color("#A6E3A1")
	colourWarning = lipgloss.Color("#F9E2AF")
	colourError   = lipgloss.Color("#F38BA8")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colourPrimary)
	mutedStyle  = lipgloss.NewStyle().Foreground(colourMuted)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(colourError)

	badgeStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

func header(s string) string {
	return headerStyle.Render(s)
}

func muted(s string) string {
	return mutedStyle.Render(s)
}

// decisionBadge renders the gate decision with its confidence score.
func decisionBadge(g *domain.GateResult) string {
	if g == nil {
		return ""
	}
	label := fmt.Sprintf("%s %.0f/%.0f", g.Decision, g.Confidence, g.Threshold)
	colour := colourWarning
	if g.Decision == domain.DecisionConfident {
		colour = colourSuccess
	}
	return badgeStyle.Foreground(colour).Render(label)
}

// failureLine renders a generation failure.
func failureLine(f *domain.GenerationFailure) string {
	return errorStyle.Render(string(f.Kind)) + " " + f.Detail
}
