// Package segment cuts long texts into bounded pieces for speech synthesis.
//
// Split never breaks a sentence unless the sentence alone is longer than the
// hard cap, and joining the returned segments with single spaces reproduces
// the input modulo whitespace. Policy carries the caller-side rule that picks
// a target count from the text length.
package segment
