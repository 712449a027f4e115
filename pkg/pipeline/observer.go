package pipeline

import "time"

// Observer receives progress notifications. Calls happen on the job's
// goroutine and must return quickly.
type Observer interface {
	StateChanged(state State)
	ChunkWritten(p Progress)
	Retrying(op string, attempt int, err error, delay time.Duration)
	RateLimited(op string, wait time.Duration)
}

// Progress describes one written chunk
type Progress struct {
	ChunkIndex   int
	Records      int
	DeadLettered int
	Bytes        int
	// TotalRecordsProcessed includes records of earlier interrupted runs
	TotalRecordsProcessed int
}

type nopObserver struct{}

func (nopObserver) StateChanged(State)                         {}
func (nopObserver) ChunkWritten(Progress)                      {}
func (nopObserver) Retrying(string, int, error, time.Duration) {}
func (nopObserver) RateLimited(string, time.Duration)          {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
