package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sfextract/pkg/pipeline"
	"sfextract/pkg/ui"
)

// ChunkRow is one written chunk as shown in the recent chunks panel
type ChunkRow struct {
	Index        int
	Records      int
	DeadLettered int
	Bytes        int
	At           time.Time
}

// Model represents the job monitor
type Model struct {
	spinner spinner.Model

	entity string
	state  pipeline.State

	// Totals for this run
	chunks          int
	records         int
	deadLettered    int
	bytes           int64
	totalProcessed  int
	retries         int
	rateLimitWaits  int
	rateLimitedFor  time.Duration
	waitingUntil    time.Time
	recentChunks    []ChunkRow
	maxRecentChunks int

	sessionStartTime time.Time
	done             bool
	result           pipeline.Result
	err              error

	// UI state
	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	// onQuit stops the job when the user quits before it finished
	onQuit func()
	now    func() time.Time
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a monitor for one entity. onQuit may be nil.
func NewModel(entity string, onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentCyan)

	return Model{
		spinner:          s,
		entity:           entity,
		state:            pipeline.StateInit,
		maxRecentChunks:  8,
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
		onQuit:           onQuit,
		now:              time.Now,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// SetState records a state transition
func (m *Model) SetState(s pipeline.State) {
	if s != pipeline.StateFetching && s != pipeline.StateCheckpointing && s != pipeline.StateUploading {
		m.AddLogMessage("INFO", "State "+string(s))
	}
	m.state = s
	if s != pipeline.StateFetching {
		m.waitingUntil = time.Time{}
	}
}

// AddChunk records a written chunk
func (m *Model) AddChunk(p pipeline.Progress) {
	m.chunks++
	m.records += p.Records
	m.deadLettered += p.DeadLettered
	m.bytes += int64(p.Bytes)
	m.totalProcessed = p.TotalRecordsProcessed
	m.waitingUntil = time.Time{}

	m.recentChunks = append(m.recentChunks, ChunkRow{
		Index:        p.ChunkIndex,
		Records:      p.Records,
		DeadLettered: p.DeadLettered,
		Bytes:        p.Bytes,
		At:           m.now(),
	})
	if len(m.recentChunks) > m.maxRecentChunks {
		m.recentChunks = m.recentChunks[len(m.recentChunks)-m.maxRecentChunks:]
	}

	if p.DeadLettered > 0 {
		m.AddLogMessage("WARN", fmt.Sprintf("Chunk %04d: %d records dead-lettered", p.ChunkIndex, p.DeadLettered))
	}
}

// AddRetry records a retried operation
func (m *Model) AddRetry(op string, attempt int, err error, delay time.Duration) {
	m.retries++
	m.AddLogMessage("WARN", fmt.Sprintf("%s attempt %d failed, retrying in %s: %v", op, attempt, ui.FormatDuration(delay), err))
}

// AddRateLimit records a server-directed wait
func (m *Model) AddRateLimit(op string, wait time.Duration) {
	m.rateLimitWaits++
	m.rateLimitedFor += wait
	m.waitingUntil = m.now().Add(wait)
	m.AddLogMessage("WARN", fmt.Sprintf("Rate limited during %s, waiting %s", op, ui.FormatDuration(wait)))
}

// Finish records the job's outcome
func (m *Model) Finish(res pipeline.Result, err error) {
	m.done = true
	m.result = res
	m.err = err
	m.waitingUntil = time.Time{}
	if err != nil {
		m.AddLogMessage("ERROR", err.Error())
		return
	}
	m.AddLogMessage("SUCCESS", fmt.Sprintf("Extracted %d records in %d chunks", res.Records, res.Chunks))
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = accentRed
	case "WARN":
		color = accentOrange
	case "SUCCESS":
		color = accentGreen
	case "INFO":
		color = accentCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Throughput returns records written per second in this session
func (m *Model) Throughput() float64 {
	elapsed := m.now().Sub(m.sessionStartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.records) / elapsed
}

// Done reports whether the job has finished
func (m *Model) Done() bool {
	return m.done
}

// Err returns the job's terminal error, if any
func (m *Model) Err() error {
	return m.err
}
