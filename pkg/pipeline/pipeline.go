package pipeline

import (
	"context"
	"fmt"
	"time"

	"sfextract/pkg/checkpoint"
	"sfextract/pkg/config"
	"sfextract/pkg/logger"
	"sfextract/pkg/metrics"
	"sfextract/pkg/sink"
	"sfextract/pkg/source"
)

// Settings select what a job extracts and how it resumes
type Settings struct {
	Entity string
	Prefix string
	// CheckpointMode is config.CheckpointBeforeUpload or config.CheckpointAfterUpload
	CheckpointMode string
	// ForceRestart discards any existing checkpoint before starting
	ForceRestart bool
}

// Components are the collaborators a job drives
type Components struct {
	Authenticator *source.Authenticator
	Credentials   source.Credentials
	Fetcher       *source.Fetcher
	Sink          *sink.Sink
	Checkpoints   checkpoint.Store
	Metrics       *metrics.Collector
	Logger        logger.Logger
	// Observer is optional
	Observer Observer
}

// Result summarizes a finished job
type Result struct {
	// Chunks and Records count the work done by this run only
	Chunks       int
	Records      int
	DeadLettered int
	Bytes        int
	// TotalRecordsProcessed includes records of earlier interrupted runs
	TotalRecordsProcessed int
	Resumed               bool
	Duration              time.Duration
}

// Job is a single extraction job. It is not safe for concurrent use and
// only one job may run per checkpoint location.
type Job struct {
	settings Settings
	c        Components
	logger   logger.Logger
	observer Observer
	state    State
	now      func() time.Time
}

// New creates a job
func New(c Components, s Settings) *Job {
	if s.CheckpointMode == "" {
		s.CheckpointMode = config.CheckpointBeforeUpload
	}
	return &Job{
		settings: s,
		c:        c,
		logger:   logger.OrNop(c.Logger).WithField("entity", s.Entity),
		observer: observerOrNop(c.Observer),
		state:    StateInit,
		now:      time.Now,
	}
}

// State returns the job's current state
func (j *Job) State() State {
	return j.state
}

func (j *Job) setState(s State) {
	if j.state != s {
		j.logger.DebugWithFields("State transition", map[string]interface{}{
			"from": string(j.state),
			"to":   string(s),
		})
	}
	j.state = s
	j.c.Metrics.SetState(string(s))
	j.observer.StateChanged(s)
}

// fail moves the job to FAILED and returns the terminal error. The
// checkpoint is left exactly as it was.
func (j *Job) fail(err error) error {
	failedIn := j.state
	j.setState(StateFailed)
	location := j.c.Checkpoints.Location()
	j.logger.WithError(err).ErrorWithFields("Extraction failed, rerun to resume from the last checkpoint", map[string]interface{}{
		"state":      string(failedIn),
		"checkpoint": location,
	})
	return &JobError{State: failedIn, CheckpointLocation: location, Err: err}
}

// Run executes the job to completion or to its first fatal error
func (j *Job) Run(ctx context.Context) (Result, error) {
	var res Result
	start := j.now()
	runTime := start.UTC()

	j.setState(StateInit)
	st, err := j.resumePoint(ctx)
	if err != nil {
		return res, j.fail(err)
	}
	res.Resumed = st.ChunkIndex > 1 || st.Continuation != ""
	res.TotalRecordsProcessed = st.TotalRecordsProcessed

	j.setState(StateAuthenticating)
	token, err := j.c.Authenticator.ObtainToken(ctx, j.c.Credentials)
	if err != nil {
		return res, j.fail(err)
	}

	pages := j.c.Fetcher.Fetch(token, st.Continuation)
	for {
		j.setState(StateFetching)
		chunk, ok, err := pages.Next(ctx)
		if err != nil {
			return res, j.fail(err)
		}
		if !ok {
			break
		}

		next := st.Next(chunk.Next, len(chunk.Records))
		loc := sink.KeysFor(j.settings.Prefix, j.settings.Entity, runTime, st.ChunkIndex)

		if j.settings.CheckpointMode == config.CheckpointBeforeUpload && !chunk.Last() {
			if err := j.save(ctx, next); err != nil {
				return res, j.fail(err)
			}
		}

		j.setState(StateUploading)
		uploadStart := j.now()
		up, err := j.c.Sink.Upload(ctx, chunk.Records, loc)
		if err != nil {
			return res, j.fail(err)
		}
		j.c.Metrics.ObserveUpload(j.now().Sub(uploadStart))

		if j.settings.CheckpointMode == config.CheckpointAfterUpload && !chunk.Last() {
			if err := j.save(ctx, next); err != nil {
				return res, j.fail(err)
			}
		}

		res.Chunks++
		res.Records += len(chunk.Records)
		res.DeadLettered += up.DeadLettered
		res.Bytes += up.Bytes
		res.TotalRecordsProcessed = next.TotalRecordsProcessed
		j.observer.ChunkWritten(Progress{
			ChunkIndex:            st.ChunkIndex,
			Records:               up.Written,
			DeadLettered:          up.DeadLettered,
			Bytes:                 up.Bytes,
			TotalRecordsProcessed: next.TotalRecordsProcessed,
		})

		j.logger.InfoWithFields("Chunk processed", map[string]interface{}{
			"chunk_index":   st.ChunkIndex,
			"records":       len(chunk.Records),
			"dead_lettered": up.DeadLettered,
			"total_records": next.TotalRecordsProcessed,
		})
		st = next
	}

	// The source is exhausted; only now may the resume point go away
	j.setState(StateCheckpointing)
	if err := j.c.Checkpoints.Clear(ctx); err != nil {
		return res, j.fail(fmt.Errorf("failed to clear checkpoint: %w", err))
	}

	j.setState(StateDone)
	res.Duration = j.now().Sub(start)
	j.logger.InfoWithFields("Extraction completed", map[string]interface{}{
		"chunks":        res.Chunks,
		"records":       res.Records,
		"dead_lettered": res.DeadLettered,
		"total_records": res.TotalRecordsProcessed,
		"duration":      res.Duration,
	})
	return res, nil
}

// resumePoint returns the persisted state or a fresh one
func (j *Job) resumePoint(ctx context.Context) (*checkpoint.JobState, error) {
	if j.settings.ForceRestart {
		if err := j.c.Checkpoints.Clear(ctx); err != nil {
			return nil, fmt.Errorf("failed to discard checkpoint: %w", err)
		}
		j.logger.InfoWithFields("Force restart, existing checkpoint discarded", map[string]interface{}{
			"checkpoint": j.c.Checkpoints.Location(),
		})
	}

	st, err := j.c.Checkpoints.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if st == nil {
		j.logger.Info("No checkpoint found, starting fresh")
		return checkpoint.Fresh(j.settings.Entity), nil
	}

	if st.Entity != "" && st.Entity != j.settings.Entity {
		return nil, fmt.Errorf("checkpoint at %s belongs to entity %q, not %q",
			j.c.Checkpoints.Location(), st.Entity, j.settings.Entity)
	}
	st.Entity = j.settings.Entity

	j.logger.InfoWithFields("Resuming from checkpoint", checkpoint.Describe(st))
	return st, nil
}

func (j *Job) save(ctx context.Context, st *checkpoint.JobState) error {
	j.setState(StateCheckpointing)
	if err := j.c.Checkpoints.Save(ctx, st); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	j.c.Metrics.RecordCheckpointSave()
	logger.LogCheckpoint(j.logger, j.c.Checkpoints.Location(), st.ChunkIndex, st.TotalRecordsProcessed)
	return nil
}
