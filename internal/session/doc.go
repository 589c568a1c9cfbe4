// Package session treats a segment directory as the durable record of a
// long-text synthesis session.
//
// A segment is complete iff segment_NNN.<ext> exists with a non-zero size;
// in-progress ".tmp" files never count. Scan recovers progress from the
// directory alone, inferring the expected count when the caller does not
// know it, so a crashed session can be resumed without re-segmenting.
package session
