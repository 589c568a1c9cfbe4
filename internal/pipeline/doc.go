// Package pipeline is the entry point for long-text sessions and word clip
// requests.
//
// SubmitLongText segments a text, records the session and its segment texts in
// the store, and hands every segment to a supervised worker pool. Progress is
// never tracked in memory: GetSegmentStatus and ResumeSession read the segment
// directory, so a restarted daemon picks up exactly where the files left off.
// MergeSession turns a complete directory into one artifact plus a text
// sidecar and announces it.
//
// Word clip requests are persisted as queue tasks; the workflow package drains
// them in the background.
package pipeline
