// Package merge joins the segments of a completed session into one artifact.
//
// Segments are concatenated in index order with a fixed silence between
// neighbours (800ms for article narration, 1000ms for clip compilations by
// default). The codec follows the file extension: MP3 segments are joined at
// the frame level with generated silent frames that match the first segment's
// header, and WAV segments are decoded and re-encoded as PCM through go-audio.
//
// A merge never runs on a partial session. Scan failures report the missing
// indices as *services.MissingSegmentError and no output file is created.
// The artifact and its ".txt" sidecar are written through temp files, and the
// segment directory is removed only after both are in place.
package merge
