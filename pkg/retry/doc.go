// Package retry wraps fallible operations in a bounded retry budget.
//
// Each attempt's error is classified as success, retryable, rate-limited or
// fatal. Retryable failures consume one attempt and back off for
// BaseDelay × 2^(k−1) after the k-th failure; rate-limited failures sleep for
// the server-directed wait and repeat the same request without consuming an
// attempt; fatal failures return immediately. When the budget is spent Do
// returns an *ExhaustedError wrapping the last failure.
//
//	r := retry.NewRetrier(retry.Policy{MaxAttempts: 5, BaseDelay: time.Second}, log)
//	err := r.Do(ctx, "fetch page", func(ctx context.Context) error {
//		return fetch(ctx)
//	})
//
// Delays go through a Sleeper so tests can record them instead of waiting.
package retry
