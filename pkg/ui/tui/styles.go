package tui

import (
	"github.com/charmbracelet/lipgloss"

	"sfextract/pkg/pipeline"
)

var (
	accentCyan    = lipgloss.Color("#00D7FF")
	accentMagenta = lipgloss.Color("#D75FD7")
	accentGreen   = lipgloss.Color("#5FD75F")
	accentYellow  = lipgloss.Color("#FFD75F")
	accentOrange  = lipgloss.Color("#FF8700")
	accentRed     = lipgloss.Color("#FF5F5F")
	darkBg        = lipgloss.Color("#121212")
	panelBg       = lipgloss.Color("#1C1C1C")
	dimWhite      = lipgloss.Color("#B0B0B0")

	baseStyle = lipgloss.NewStyle().
			Background(darkBg).
			Foreground(dimWhite)

	headerStyle = lipgloss.NewStyle().
			Foreground(accentCyan).
			Bold(true).
			Padding(1, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentMagenta).
			Background(panelBg).
			Padding(0, 1)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(accentCyan).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(accentYellow)

	successStyle = lipgloss.NewStyle().
			Foreground(accentGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(accentRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(accentOrange).
			Bold(true)

	chunkRowStyle = lipgloss.NewStyle().
			PaddingLeft(1)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	logMessageStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(1, 0, 0, 2)

	titleStyle = lipgloss.NewStyle().
			Background(accentMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)
)

// StateStyle returns the style used to render a job state
func StateStyle(s pipeline.State) lipgloss.Style {
	switch s {
	case pipeline.StateDone:
		return successStyle
	case pipeline.StateFailed:
		return errorStyle
	case pipeline.StateCheckpointing:
		return warningStyle
	default:
		return statsValueStyle.Bold(true)
	}
}
