package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sfextract/pkg/ui"
)

// View renders the entire monitor
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	half := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(half),
		m.renderChunksPanel(half),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", m.renderLogsPanel(half)))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q quit • ? help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m Model) renderHeader() string {
	indicator := m.spinner.View()
	if m.done {
		indicator = successStyle.Render("✓")
		if m.err != nil {
			indicator = errorStyle.Render("✗")
		}
	}

	status := StateStyle(m.state).Render(string(m.state))
	if !m.waitingUntil.IsZero() {
		if left := m.waitingUntil.Sub(m.now()); left > 0 {
			status += " " + warningStyle.Render("rate limited, "+ui.FormatDuration(left)+" left")
		}
	}

	return headerStyle.Render(fmt.Sprintf("%s sfextract · %s · %s", indicator, m.entity, status))
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
}

func (m Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" JOB ")

	stats := []string{
		stat("Elapsed:", ui.FormatDuration(m.now().Sub(m.sessionStartTime))),
		stat("Chunks:", fmt.Sprintf("%d", m.chunks)),
		stat("Records:", fmt.Sprintf("%d (%.1f/s)", m.records, m.Throughput())),
		stat("All runs:", fmt.Sprintf("%d", m.totalProcessed)),
		stat("Written:", ui.FormatBytes(m.bytes)),
		stat("Retries:", fmt.Sprintf("%d", m.retries)),
		stat("Rate limits:", fmt.Sprintf("%d (%s)", m.rateLimitWaits, ui.FormatDuration(m.rateLimitedFor))),
	}
	if m.deadLettered > 0 {
		stats = append(stats, errorStyle.Render(fmt.Sprintf("%d records dead-lettered", m.deadLettered)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

func (m Model) renderChunksPanel(width int) string {
	title := titleStyle.Render(" RECENT CHUNKS ")

	if len(m.recentChunks) == 0 {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("No chunks written yet")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	rows := make([]string, 0, len(m.recentChunks))
	for i := len(m.recentChunks) - 1; i >= 0; i-- {
		c := m.recentChunks[i]
		row := fmt.Sprintf("part_%04d  %5d records  %9s", c.Index, c.Records, ui.FormatBytes(int64(c.Bytes)))
		if c.DeadLettered > 0 {
			row += "  " + errorStyle.Render(fmt.Sprintf("%d dead", c.DeadLettered))
		}
		rows = append(rows, chunkRowStyle.Render(row))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

func (m Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" EVENTS ")

	start := len(m.logMessages) - 12
	if start < 0 {
		start = 0
	}

	maxMsgLen := width - 25
	if maxMsgLen < 10 {
		maxMsgLen = 10
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		message := log.Message
		if len(message) > maxMsgLen {
			message = message[:maxMsgLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s",
			logTimestampStyle.Render(log.Time.Format("15:04:05")),
			lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level)),
			logMessageStyle.Render(message),
		))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No events yet...")
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

func (m Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop the job and quit (the checkpoint is kept)
    ctrl+l   - Clear events
    ?        - Toggle this help

  States:
    ` + successStyle.Render("DONE") + `      - Source exhausted, checkpoint cleared
    ` + warningStyle.Render("CHECKPOINTING") + ` - Persisting the resume point
    ` + errorStyle.Render("FAILED") + `    - Rerun to resume from the checkpoint
`
	return panelStyle.Width(m.width - 2).Render(help)
}
