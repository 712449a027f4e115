// Package checkpoint persists the resume state of an extraction job.
//
// A JobState records the continuation of the next page, the index of the
// next chunk and the running record total. Two stores are provided:
// FileStore writes a JSON file through temp-file, fsync and rename, and
// RedisStore keeps the same JSON under one key. Both treat a malformed value
// as "no checkpoint" after logging a warning, and both make Clear
// idempotent.
package checkpoint
