package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"sfextract/pkg/pipeline"
)

// Console prints job progress as plain lines. It implements
// pipeline.Observer.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	entity  string
	verbose bool

	chunks       int
	records      int
	deadLettered int
	bytes        int64
	retries      int
	startTime    time.Time
}

// NewConsole creates a console observer for one entity. Verbose also
// prints every state transition.
func NewConsole(out io.Writer, entity string, verbose bool) *Console {
	return &Console{
		out:       out,
		entity:    entity,
		verbose:   verbose,
		startTime: time.Now(),
	}
}

func (c *Console) StateChanged(s pipeline.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch s {
	case pipeline.StateAuthenticating:
		fmt.Fprintf(c.out, "%s Authenticating\n", Magenta("→"))
	case pipeline.StateFailed:
		fmt.Fprintf(c.out, "%s %s\n", Red("✗"), Red("Job failed"))
	default:
		if c.verbose {
			fmt.Fprintf(c.out, "%s %s\n", Dim("·"), Dim(strings.ToLower(string(s))))
		}
	}
}

func (c *Console) ChunkWritten(p pipeline.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chunks++
	c.records += p.Records
	c.deadLettered += p.DeadLettered
	c.bytes += int64(p.Bytes)

	line := fmt.Sprintf("%s %s chunk %s • %d records • %s • %d total",
		Green("✓"),
		Cyan(c.entity),
		Bold(fmt.Sprintf("%04d", p.ChunkIndex)),
		p.Records,
		FormatBytes(int64(p.Bytes)),
		p.TotalRecordsProcessed,
	)
	if p.DeadLettered > 0 {
		line += " • " + Red(fmt.Sprintf("%d dead-lettered", p.DeadLettered))
	}
	fmt.Fprintln(c.out, line)
}

func (c *Console) Retrying(op string, attempt int, err error, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retries++
	fmt.Fprintf(c.out, "%s %s failed (attempt %d), retrying in %s: %v\n",
		Yellow("↻"), op, attempt, FormatDuration(delay), err)
}

func (c *Console) RateLimited(op string, wait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s Rate limit reached during %s. Waiting %s...\n",
		Yellow("⚠"), op, FormatDuration(wait))
}

// Retries returns how many retries were reported
func (c *Console) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

var _ pipeline.Observer = (*Console)(nil)
