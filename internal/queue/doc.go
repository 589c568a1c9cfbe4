// Package queue persists word clip tasks, owner audio flags, and session
// records in SQLite and exposes helpers for driving their lifecycle.
//
// A word task row exists only while the task is not terminal. Claiming moves
// Pending rows to Processing with a heartbeat; completion applies the owner
// side effect and deletes the row in one transaction; failure increments
// attempts and either returns the row to Pending or, once attempts reach the
// ceiling, records the exhaustion on the owner and deletes the row. Attempts
// only ever increase and an exhausted task is never revived: requeueing an
// owner creates a fresh task.
//
// Session rows hold owner, segment text, and merge state so sessions can be
// resumed without re-segmenting. Segment progress itself is never stored here;
// the segment directory is the only ledger for that.
//
// The database is treated as working storage rather than an archive. Schema
// changes bump the version in schema.go; users clear the database to adopt
// the new schema.
package queue
