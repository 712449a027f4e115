// Package ratelimit provides optional client-side pacing for source API
// requests.
//
// Server-directed waits (HTTP 429 with Retry-After) are handled by the retry
// package; this limiter only keeps a job under a configured requests-per-
// minute ceiling so that such waits are rarer. PerMinute(0) returns a limiter
// that never blocks.
//
//	limiter := ratelimit.PerMinute(cfg.Source.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
