package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"sfextract/pkg/pipeline"
)

// Message types for the monitor

// StateMsg is sent when the job changes state
type StateMsg struct {
	State pipeline.State
}

// ChunkMsg is sent after a chunk was written
type ChunkMsg struct {
	Progress pipeline.Progress
}

// RetryMsg is sent before a failed operation is retried
type RetryMsg struct {
	Op      string
	Attempt int
	Err     error
	Delay   time.Duration
}

// RateLimitMsg is sent when the source asks the job to wait
type RateLimitMsg struct {
	Op   string
	Wait time.Duration
}

// DoneMsg is sent once the job returned
type DoneMsg struct {
	Result pipeline.Result
	Err    error
}

// TickMsg is sent periodically to refresh elapsed times
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case StateMsg:
		m.SetState(msg.State)
		return m, nil

	case ChunkMsg:
		m.AddChunk(msg.Progress)
		return m, nil

	case RetryMsg:
		m.AddRetry(msg.Op, msg.Attempt, msg.Err, msg.Delay)
		return m, nil

	case RateLimitMsg:
		m.AddRateLimit(msg.Op, msg.Wait)
		return m, nil

	case DoneMsg:
		m.Finish(msg.Result, msg.Err)
		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if !m.done && m.onQuit != nil {
			m.AddLogMessage("WARN", "Stopped by user, checkpoint kept")
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
