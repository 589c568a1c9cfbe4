package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"narrator/internal/session"
)

// mp3FrameHeader is MPEG-1 Layer III, 128 kbps, 44.1 kHz mono without padding,
// so every frame is 417 bytes.
var mp3FrameHeader = []byte{0xFF, 0xFB, 0x90, 0xC0}

const mp3FrameSize = 417

// MP3Frames returns n silent MP3 frames that decoders and the merger accept.
func MP3Frames(n int) []byte {
	if n <= 0 {
		n = 1
	}
	frame := make([]byte, mp3FrameSize)
	copy(frame, mp3FrameHeader)
	return bytes.Repeat(frame, n)
}

// WriteFile creates path with size bytes of filler, creating parent
// directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'B'}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteSegment writes a non-empty mp3 segment file for index into dir and
// returns its path.
func WriteSegment(t testing.TB, dir string, index int, size int64) string {
	t.Helper()
	path := filepath.Join(dir, session.SegmentFileName(index, ".mp3"))
	WriteFile(t, path, size)
	return path
}
