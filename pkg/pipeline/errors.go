package pipeline

import (
	"errors"
	"fmt"
)

// JobError is the terminal error of a failed job
type JobError struct {
	// State is where the job was when it failed
	State State
	// CheckpointLocation is where the resume point is kept
	CheckpointLocation string
	Err                error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("extraction failed while %s: %v (checkpoint kept at %s; rerun to resume)",
		e.State.activity(), e.Err, e.CheckpointLocation)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// AsJobError extracts the *JobError from err, if any
func AsJobError(err error) (*JobError, bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}
