// Package logger provides the structured logging interface used across
// sfextract.
//
// It wraps zerolog. The CLI builds a console logger (optionally teed into a
// JSON log file) through New or Initialize; library packages receive a
// Logger through their constructors and fall back to a no-op logger via
// OrNop when none is given.
//
// Domain helpers such as LogPage, LogUpload, LogRateLimit and LogCheckpoint
// keep field names consistent between the fetcher, the sink and the
// orchestrator. TestLogger captures messages for assertions in tests.
package logger
