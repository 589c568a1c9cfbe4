// Package synth turns one text unit into one audio file on disk.
//
// Worker.Synthesize writes segment_NNN.<ext> into a session directory and
// Worker.SynthesizeClip writes a standalone clip at an arbitrary path. Both
// are idempotent: an existing non-empty target returns immediately without a
// remote call. Audio is streamed into "<target>.tmp", size-checked, then
// renamed, so a crash never leaves a partial file under the final name.
//
// Retry policy (attempts are 1-based, no sleep after the last attempt):
//
//   - services.ErrTransient (timeouts, connection failures): base * 2^(attempt-1)
//   - empty results and generic failures: base * attempt
//   - services.ErrClientRejected: terminal on first sight
//
// Exhaustion returns a *services.SegmentError wrapping the last failure.
package synth
