package retry

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sfextract/pkg/config"
	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
)

// recordingSleeper captures requested delays without waiting
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testConfig(maxAttempts int, base time.Duration, s *recordingSleeper) *Config {
	cfg := NewConfig("test op", Policy{MaxAttempts: maxAttempts, BaseDelay: base}, logger.NewTestLogger())
	cfg.Sleep = s.Sleep
	return cfg
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}

	tests := []struct {
		k    int
		want time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.k), "k=%d", tt.k)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxAttempts: 4, BaseDelay: 2 * time.Second})
	assert.Equal(t, Policy{MaxAttempts: 4, BaseDelay: 2 * time.Second}, p)
}

func TestExponentialBackoffCap(t *testing.T) {
	b := &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	assert.Equal(t, 800*time.Millisecond, b.NextDelay(4))
	assert.Equal(t, time.Second, b.NextDelay(5))
	assert.Equal(t, time.Second, b.NextDelay(30))
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	b := &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, Multiplier: 2, JitterFactor: 0.3}
	for i := 0; i < 50; i++ {
		d := b.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestExponentialBackoffSaturates(t *testing.T) {
	// 2^62ns doubled is exactly 2^63, one past the largest Duration
	b := NewExponentialBackoff(time.Duration(1 << 62))
	assert.Equal(t, time.Duration(math.MaxInt64), b.NextDelay(2))
	assert.Equal(t, time.Duration(math.MaxInt64), NewExponentialBackoff(time.Second).NextDelay(200))
	assert.Equal(t, time.Duration(0), b.NextDelay(0))
}

func TestDoSucceedsFirstTry(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, testConfig(3, time.Second, s))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.Delays())
}

func TestDoBacksOffExponentially(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return errs.FromStatus("fetch", 503, 0)
		}
		return nil
	}, testConfig(5, time.Second, s))

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, s.Delays())
}

func TestDoExhaustsBudget(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	cause := errs.New(errs.ErrorTypeNetwork, "fetch", "connection reset")
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	}, testConfig(3, 10*time.Millisecond, s))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// Sleeps only between attempts, never after the last one
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, s.Delays())
	assert.True(t, IsExhausted(err))
	assert.ErrorIs(t, err, cause)

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 3, ex.Attempts)
	assert.Equal(t, "test op", ex.Operation)
}

func TestDoSingleAttemptBudget(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	}, testConfig(1, time.Second, s))

	assert.True(t, IsExhausted(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.Delays())
}

func TestDoFatalStopsImmediately(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	rejection := errs.FromStatus("obtain token", 401, 0)
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return rejection
	}, testConfig(5, time.Second, s))

	assert.Equal(t, 1, calls)
	assert.Same(t, rejection, err)
	assert.False(t, IsExhausted(err))
	assert.Empty(t, s.Delays())
}

func TestDoRateLimitDoesNotConsumeBudget(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	var waits []time.Duration
	cfg := testConfig(2, time.Second, s)
	cfg.OnRateLimit = func(d time.Duration) { waits = append(waits, d) }

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return errs.FromStatus("fetch", 429, 5*time.Second)
		}
		if calls == 4 {
			return errs.FromStatus("fetch", 500, 0)
		}
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, time.Second}, s.Delays())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, waits)
}

func TestDoOnRetryHook(t *testing.T) {
	s := &recordingSleeper{}
	var attempts []int
	cfg := testConfig(3, time.Second, s)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), func(ctx context.Context) error {
		return errors.New("flaky")
	}, cfg)

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	cfg := NewConfig("test op", Policy{MaxAttempts: 5, BaseDelay: time.Hour}, nil)
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return errs.New(errs.ErrorTypeServerError, "fetch", "bad gateway")
	}, cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	got, err := DoWithResult(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "token", nil
	}, testConfig(3, time.Second, s))

	require.NoError(t, err)
	assert.Equal(t, "token", got)
	assert.Equal(t, []time.Duration{time.Second}, s.Delays())
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		outcome  Outcome
		waitWant time.Duration
	}{
		{"nil", nil, Success, 0},
		{"server error", errs.FromStatus("op", 502, 0), Retryable, 0},
		{"rate limited", errs.FromStatus("op", 429, 7*time.Second), RateLimited, 7 * time.Second},
		{"auth rejection", errs.FromStatus("op", 403, 0), Fatal, 0},
		{"client error", errs.FromStatus("op", 400, 0), Fatal, 0},
		{"storage", errs.New(errs.ErrorTypeStorage, "put", "throttled"), Retryable, 0},
		{"cancelled", context.Canceled, Fatal, 0},
		{"request timeout", errs.Wrap(errs.ErrorTypeNetwork, "op", context.DeadlineExceeded), Retryable, 0},
		{"unknown", errors.New("eof"), Retryable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, wait := DefaultClassifier(tt.err)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, tt.waitWant, wait)
		})
	}
}

func TestRetrierOwnsAttemptCounterPerCall(t *testing.T) {
	s := &recordingSleeper{}
	r := NewRetrier(Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, nil).WithSleeper(s.Sleep)

	for i := 0; i < 3; i++ {
		calls := 0
		err := r.Do(context.Background(), "upload", func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("flaky")
			}
			return nil
		})
		require.NoError(t, err, "call %d", i)
	}
	assert.Len(t, s.Delays(), 3)
	assert.Equal(t, Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, r.Policy())
}

func TestDoWith(t *testing.T) {
	r := NewRetrier(Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, nil)
	n, err := DoWith(context.Background(), r, "count", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Wait(context.Background(), time.Millisecond))
}
