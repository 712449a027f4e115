// Package storage writes chunk partitions to object storage.
//
// Store has three production backends: S3Store (AWS SDK v2 upload manager,
// also usable with S3-compatible endpoints), GCSStore (Cloud Storage object
// writer) and FSStore (atomic temp-file writes under a local directory).
// MemoryStore keeps objects in memory for dry runs and tests.
//
// Put never retries on its own. Failures are returned as typed errors so the
// caller's retry policy can tell a transient storage fault from a cancelled
// run.
package storage
