// Package pipeline runs one extraction job: it authenticates once, pulls
// pages in order, persists the resume point and writes every chunk to
// object storage.
//
// A job moves through the states
//
//	INIT -> AUTHENTICATING -> FETCHING -> CHECKPOINTING -> UPLOADING -> ... -> DONE
//
// and lands in FAILED on any fatal error. A failed job leaves its last
// checkpoint untouched, so running it again continues from there. The
// checkpoint is cleared only after the source reports no further pages.
//
// Two checkpoint orderings are supported. In before_upload mode the resume
// point of the following page is saved before the current chunk is
// written; a crash during the write skips that chunk on resume. In
// after_upload mode the save follows the write and a crash re-writes the
// chunk instead.
package pipeline
