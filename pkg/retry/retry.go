package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sfextract/pkg/config"
	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Outcome classifies the result of a single attempt
type Outcome int

const (
	// Success ends the loop
	Success Outcome = iota
	// Retryable consumes one attempt and backs off
	Retryable
	// RateLimited waits for the server-directed duration without consuming an attempt
	RateLimited
	// Fatal ends the loop immediately, regardless of the remaining budget
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case RateLimited:
		return "rate_limited"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classifier maps an attempt error to an outcome. For RateLimited the
// returned duration is the wait before repeating the same request.
type Classifier func(err error) (Outcome, time.Duration)

// Policy is the retry budget: at most MaxAttempts counted attempts with
// BaseDelay × 2^(k−1) between the k-th failure and the next attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// PolicyFromConfig builds a Policy from the retry configuration section
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay}
}

// Delay returns the backoff after the k-th failed attempt (k ≥ 1)
func (p Policy) Delay(k int) time.Duration {
	return NewExponentialBackoff(p.BaseDelay).NextDelay(k)
}

// Config holds retry configuration
type Config struct {
	// Operation names the call site in logs and errors
	Operation string
	// MaxAttempts is the number of counted attempts; must be at least 1
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// Classify decides how each failed attempt is handled
	Classify Classifier
	// OnRetry is called before each backoff sleep
	OnRetry func(attempt int, err error, delay time.Duration)
	// OnRateLimit is called before each rate-limit wait
	OnRateLimit func(wait time.Duration)
	// Sleep performs the delays; defaults to Wait
	Sleep Sleeper
	// Logger for retry attempts
	Logger logger.Logger
}

// NewConfig returns a Config for the given policy with the default classifier
func NewConfig(op string, p Policy, log logger.Logger) *Config {
	return &Config{
		Operation:   op,
		MaxAttempts: p.MaxAttempts,
		Backoff:     NewExponentialBackoff(p.BaseDelay),
		Classify:    DefaultClassifier,
		Sleep:       Wait,
		Logger:      logger.OrNop(log),
	}
}

// DefaultClassifier treats rate-limit errors as server-directed waits,
// context cancellation and non-retryable error types as fatal, and every
// other error as retryable.
func DefaultClassifier(err error) (Outcome, time.Duration) {
	if err == nil {
		return Success, 0
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var apiErr *errs.Error
		// A per-request timeout surfaces as a network error and is retryable
		if !errors.As(err, &apiErr) || apiErr.Type != errs.ErrorTypeNetwork {
			return Fatal, 0
		}
	}

	if wait, ok := errs.RetryAfterOf(err); ok {
		return RateLimited, wait
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		if errs.IsRetryable(apiErr.Type) {
			return Retryable, 0
		}
		return Fatal, 0
	}

	// Unknown errors are assumed transient
	return Retryable, 0
}

// ExhaustedError is returned when every counted attempt failed
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err came from a spent retry budget
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Do executes an operation with retry logic. Rate-limit waits repeat the
// same attempt and never consume the budget.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig("operation", Policy{MaxAttempts: 1}, nil)
	}
	classify := cfg.Classify
	if classify == nil {
		classify = DefaultClassifier
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Wait
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NewExponentialBackoff(time.Second)
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	log := logger.OrNop(cfg.Logger).WithField("operation", cfg.Operation)

	attempt := 0
	for {
		err := op(ctx)
		outcome, wait := classify(err)

		switch outcome {
		case Success:
			if attempt > 0 {
				log.DebugWithFields("Operation succeeded after retry", map[string]interface{}{
					"failed_attempts": attempt,
				})
			}
			return nil

		case RateLimited:
			logger.LogRateLimit(log, cfg.Operation, wait)
			if cfg.OnRateLimit != nil {
				cfg.OnRateLimit(wait)
			}
			if serr := sleep(ctx, wait); serr != nil {
				return fmt.Errorf("%s: rate-limit wait cancelled: %w", cfg.Operation, serr)
			}
			continue

		case Fatal:
			log.WithError(err).Debug("Error is not retryable")
			return err
		}

		attempt++
		if attempt >= maxAttempts {
			log.WithError(err).ErrorWithFields("Max retry attempts exceeded", map[string]interface{}{
				"attempts": attempt,
			})
			return &ExhaustedError{Operation: cfg.Operation, Attempts: attempt, Err: err}
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WithError(err).WarnWithFields("Retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"delay":        delay,
		})

		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%s: retry cancelled: %w", cfg.Operation, serr)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)

	return result, err
}

// Retrier provides a reusable retry mechanism bound to one policy. Each
// Do call owns its own attempt counter.
type Retrier struct {
	config Config
}

// NewRetrier creates a new retrier for the given policy
func NewRetrier(p Policy, log logger.Logger) *Retrier {
	return &Retrier{config: *NewConfig("operation", p, log)}
}

// Do executes op under the retrier's policy, logged as the named operation
func (r *Retrier) Do(ctx context.Context, name string, op Operation) error {
	cfg := r.config
	cfg.Operation = name
	return Do(ctx, op, &cfg)
}

// WithSleeper returns a new retrier that delays through s
func (r *Retrier) WithSleeper(s Sleeper) *Retrier {
	cfg := r.config
	cfg.Sleep = s
	return &Retrier{config: cfg}
}

// WithHooks returns a new retrier that reports retries and rate-limit waits
func (r *Retrier) WithHooks(onRetry func(int, error, time.Duration), onRateLimit func(time.Duration)) *Retrier {
	cfg := r.config
	cfg.OnRetry = onRetry
	cfg.OnRateLimit = onRateLimit
	return &Retrier{config: cfg}
}

// Policy returns the retrier's budget
func (r *Retrier) Policy() Policy {
	var base time.Duration
	if eb, ok := r.config.Backoff.(*ExponentialBackoff); ok {
		base = eb.BaseDelay
	}
	return Policy{MaxAttempts: r.config.MaxAttempts, BaseDelay: base}
}

// DoWith runs a result-returning operation through a Retrier
func DoWith[T any](ctx context.Context, r *Retrier, name string, op OperationWithResult[T]) (T, error) {
	cfg := r.config
	cfg.Operation = name
	return DoWithResult(ctx, op, &cfg)
}
