package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"overture/internal/logging"
)

// styles groups the terminal styling used by all subcommands.
type styles struct {
	Header    lipgloss.Style
	ID        lipgloss.Style
	Dim       lipgloss.Style
	Running   lipgloss.Style
	Succeeded lipgloss.Style
	Failed    lipgloss.Style
	Neutral   lipgloss.Style
	Stderr    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Header:    lipgloss.NewStyle().Bold(true),
		ID:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Running:   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		Succeeded: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Neutral:   lipgloss.NewStyle(),
		Stderr:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

var ui = defaultStyles()

// nodeColors maps directive color names onto ANSI palette indices.
var nodeColors = map[string]string{
	"red":     "1",
	"green":   "2",
	"yellow":  "3",
	"blue":    "4",
	"magenta": "5",
	"cyan":    "6",
	"white":   "7",
	"gray":    "8",
}

// tagStyle returns the style for a node's output prefix. Nodes without
// a declared color render unstyled.
func tagStyle(color string) lipgloss.Style {
	if ansi, ok := nodeColors[color]; ok {
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ansi))
	}
	return lipgloss.NewStyle().Bold(true)
}

// stateStyle picks a style by lifecycle state; node and environment
// states share the vocabulary that matters for coloring.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "running", "starting":
		return ui.Running
	case "succeeded", "completed":
		return ui.Succeeded
	case "failed":
		return ui.Failed
	case "killed", "terminated":
		return ui.Dim
	default:
		return ui.Neutral
	}
}

func renderState(state string) string {
	return stateStyle(state).Render(state)
}

func levelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelError:
		return ui.Failed
	case logging.LevelWarning:
		return ui.Stderr
	case logging.LevelDebug:
		return ui.Dim
	default:
		return ui.Neutral
	}
}

// renderOutputLine formats one captured line as "[NODE] text", with the
// tag in the node's color and stderr lines tinted.
func renderOutputLine(node, color, stream, text string) string {
	tag := tagStyle(color).Render("[" + node + "]")
	if stream == "stderr" {
		return tag + " " + ui.Stderr.Render(text)
	}
	return tag + " " + text
}

// padRight pads plain (unstyled) cell text for column alignment.
func padRight(text string, width int) string {
	if len(text) >= width {
		return text
	}
	return text + strings.Repeat(" ", width-len(text))
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0fs", seconds)
}
