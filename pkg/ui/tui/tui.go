package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sfextract/pkg/pipeline"
)

// TUI is a full-screen job monitor. It implements pipeline.Observer, so
// it can be handed to pipeline.Build directly.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a monitor for one entity. cancel stops the job when the
// user quits early.
func NewTUI(entity string, cancel func()) *TUI {
	model := NewModel(entity, cancel)
	program := tea.NewProgram(&model, tea.WithAltScreen())

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Run blocks until the job finished or the user quit
func (t *TUI) Run() error {
	go t.program.Send(TickMsg(time.Now()))

	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI. It returns immediately once the
// program has exited.
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) StateChanged(s pipeline.State) {
	t.Send(StateMsg{State: s})
}

func (t *TUI) ChunkWritten(p pipeline.Progress) {
	t.Send(ChunkMsg{Progress: p})
}

func (t *TUI) Retrying(op string, attempt int, err error, delay time.Duration) {
	t.Send(RetryMsg{Op: op, Attempt: attempt, Err: err, Delay: delay})
}

func (t *TUI) RateLimited(op string, wait time.Duration) {
	t.Send(RateLimitMsg{Op: op, Wait: wait})
}

// Finish reports the job's outcome and closes the monitor
func (t *TUI) Finish(res pipeline.Result, err error) {
	t.Send(DoneMsg{Result: res, Err: err})
}

var _ pipeline.Observer = (*TUI)(nil)
