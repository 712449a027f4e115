package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sfextract/pkg/checkpoint"
	"sfextract/pkg/config"
	"sfextract/pkg/logger"
	"sfextract/pkg/metrics"
	"sfextract/pkg/ratelimit"
	"sfextract/pkg/retry"
	"sfextract/pkg/sink"
	"sfextract/pkg/source"
	"sfextract/pkg/storage"
)

// Operation names used in logs and the retries_total metric
const (
	OpAuth   = "auth"
	OpFetch  = "fetch"
	OpUpload = "upload"
)

// BuildOptions adjust how Build wires a job
type BuildOptions struct {
	// DryRun swaps object storage and checkpoint for in-memory versions
	DryRun       bool
	ForceRestart bool
	Metrics      *metrics.Collector
	Observer     Observer
	// Sleeper replaces the real delay between attempts (tests)
	Sleeper retry.Sleeper
}

// Built is a wired job plus the resources it owns
type Built struct {
	Job         *Job
	Store       storage.Store
	Checkpoints checkpoint.Store
	closers     []func() error
}

// Close releases storage and checkpoint clients
func (b *Built) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires a job from configuration
func Build(ctx context.Context, cfg *config.Config, creds source.Credentials, log logger.Logger, opts BuildOptions) (*Built, error) {
	log = logger.OrNop(log)
	m := opts.Metrics
	obs := observerOrNop(opts.Observer)
	b := &Built{}

	if opts.DryRun {
		b.Store = storage.NewMemoryStore(cfg.Storage.Bucket)
		b.Checkpoints = checkpoint.NewMemoryStore()
	} else {
		store, err := storage.New(ctx, cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create object storage: %w", err)
		}
		b.Store = store
		b.closers = append(b.closers, store.Close)

		cps, err := checkpoint.New(cfg.Checkpoint, log)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		b.Checkpoints = cps
		if c, ok := cps.(interface{ Close() error }); ok {
			b.closers = append(b.closers, c.Close)
		}
	}

	policy := retry.PolicyFromConfig(cfg.Retry)
	retrier := func(op string) *retry.Retrier {
		r := retry.NewRetrier(policy, log).WithHooks(
			func(attempt int, err error, delay time.Duration) {
				m.RecordRetry(op)
				obs.Retrying(op, attempt, err, delay)
			},
			func(wait time.Duration) {
				m.RecordRateLimit(op, wait)
				obs.RateLimited(op, wait)
			},
		)
		if opts.Sleeper != nil {
			r = r.WithSleeper(opts.Sleeper)
		}
		return r
	}

	authClient := source.NewClient(cfg.Source.AuthTimeout, log)
	authClient.SetDefaultRetryAfter(cfg.Source.DefaultRetryAfter)
	auth := source.NewAuthenticator(authClient, cfg.Source.TokenURL, retrier(OpAuth), log)

	dataClient := source.NewClient(cfg.Source.RequestTimeout, log)
	dataClient.SetDefaultRetryAfter(cfg.Source.DefaultRetryAfter)
	fetcher := source.NewFetcher(dataClient, source.FetcherConfig{
		APIBaseURL:   cfg.Source.APIBaseURL,
		EntityName:   cfg.Source.EntityName,
		SelectFields: cfg.Source.SelectFields,
		ResultsPath:  cfg.Source.ResultsPath,
		NextPagePath: cfg.Source.NextPagePath,
	}, retrier(OpFetch), log,
		source.WithLimiter(ratelimit.PerMinute(cfg.Source.RequestsPerMinute)),
		source.WithMetrics(m),
	)

	b.Job = New(Components{
		Authenticator: auth,
		Credentials:   creds,
		Fetcher:       fetcher,
		Sink:          sink.New(b.Store, retrier(OpUpload), m, log),
		Checkpoints:   b.Checkpoints,
		Metrics:       m,
		Logger:        log,
		Observer:      opts.Observer,
	}, Settings{
		Entity:         cfg.Source.EntityName,
		Prefix:         cfg.Storage.Prefix,
		CheckpointMode: cfg.Checkpoint.Mode,
		ForceRestart:   opts.ForceRestart,
	})
	return b, nil
}
