package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs HTTP request information at a level matching the status
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration":    duration,
	}

	switch {
	case statusCode >= 500:
		l.WarnWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogPage logs a fetched page
func LogPage(l Logger, page int, records int, hasNext bool) {
	l.InfoWithFields("Page fetched", map[string]interface{}{
		"page":     page,
		"records":  records,
		"has_next": hasNext,
	})
}

// LogUpload logs a completed object write
func LogUpload(l Logger, location string, records int, bytes int) {
	l.InfoWithFields("Chunk partition uploaded", map[string]interface{}{
		"location": location,
		"records":  records,
		"bytes":    bytes,
	})
}

// LogRateLimit logs a server-directed wait
func LogRateLimit(l Logger, op string, wait time.Duration) {
	l.WithFields(map[string]interface{}{
		"operation":   op,
		"retry_after": wait,
		"action":      "rate_limited",
	}).Warn("Rate limit hit, waiting before retrying the same request")
}

// LogCheckpoint logs a persisted checkpoint
func LogCheckpoint(l Logger, location string, chunkIndex int, totalRecords int) {
	l.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"location":      location,
		"chunk_index":   chunkIndex,
		"total_records": totalRecords,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
