package merge_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"narrator/internal/config"
	"narrator/internal/merge"
	"narrator/internal/services"
	"narrator/internal/session"
)

// 128 kbps, 44.1 kHz, MPEG-1 Layer III, mono, no CRC: 417-byte frames.
var testHeader = []byte{0xFF, 0xFB, 0x90, 0xC0}

const testFrameLen = 417

func mp3Frame(fill byte) []byte {
	frame := bytes.Repeat([]byte{fill}, testFrameLen)
	copy(frame, testHeader)
	return frame
}

func writeMP3Segment(t *testing.T, dir string, index int, payload []byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, session.SegmentFileName(index, ".mp3")), payload, 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}
}

func newMerger(t *testing.T, format string) (*merge.Merger, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.ArtifactDir = filepath.Join(t.TempDir(), "artifacts")
	cfg.TTS.ResponseFormat = format
	m, err := merge.New(&cfg)
	if err != nil {
		t.Fatalf("merge.New: %v", err)
	}
	return m, &cfg
}

func TestMergeMP3InsertsSilenceAndStripsTags(t *testing.T) {
	m, _ := newMerger(t, "mp3")
	dir := filepath.Join(t.TempDir(), "sess-1")

	id3 := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 0}
	first := append(append([]byte{}, id3...), mp3Frame(0x11)...)
	first = append(first, mp3Frame(0x12)...)
	first = append(first, mp3Frame(0x13)...)
	writeMP3Segment(t, dir, 0, first)

	tag := make([]byte, 128)
	copy(tag, "TAG")
	second := append(append(mp3Frame(0x21), mp3Frame(0x22)...), tag...)
	writeMP3Segment(t, dir, 1, second)

	artifact, err := m.Merge(context.Background(), merge.Request{
		SessionID:     "sess-1",
		SegmentDir:    dir,
		ExpectedCount: 2,
		OriginalText:  "Original text.",
		Kind:          merge.KindArticle,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if artifact.Filename != "sess-1.mp3" {
		t.Fatalf("unexpected filename %s", artifact.Filename)
	}

	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	// 800ms at 44.1 kHz over 1152-sample frames rounds up to 31 frames.
	wantFrames := 3 + 31 + 2
	if len(data) != wantFrames*testFrameLen {
		t.Fatalf("expected %d bytes, got %d", wantFrames*testFrameLen, len(data))
	}
	if data[0] != 0xFF || data[4] != 0x11 {
		t.Fatalf("artifact does not start with first audio frame")
	}
	silence := data[3*testFrameLen : 4*testFrameLen]
	if !bytes.Equal(silence[:4], testHeader) || bytes.ContainsAny(silence[4:], "\x11\x21") {
		t.Fatalf("expected silent frame after first segment")
	}
	if last := data[len(data)-testFrameLen:]; last[4] != 0x22 {
		t.Fatalf("artifact does not end with last audio frame")
	}

	text, err := os.ReadFile(artifact.TextPath)
	if err != nil || string(text) != "Original text." {
		t.Fatalf("unexpected sidecar %q (%v)", text, err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected segment dir removed, got %v", err)
	}
}

func TestMergeSkipsInfoFrame(t *testing.T) {
	m, _ := newMerger(t, "mp3")
	dir := filepath.Join(t.TempDir(), "sess-info")

	info := mp3Frame(0x00)
	copy(info[4+17:], "Xing")
	writeMP3Segment(t, dir, 0, append(info, mp3Frame(0x31)...))

	artifact, err := m.Merge(context.Background(), merge.Request{SessionID: "sess-info", SegmentDir: dir, ExpectedCount: 1})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	data, _ := os.ReadFile(artifact.Path)
	if len(data) != testFrameLen || data[4] != 0x31 {
		t.Fatalf("expected only the audio frame, got %d bytes", len(data))
	}
}

func TestMergeMP3ResyncsPastJunkBytes(t *testing.T) {
	m, _ := newMerger(t, "mp3")
	dir := filepath.Join(t.TempDir(), "sess-junk")
	payload := append([]byte{0x00, 0x00, 0x00}, mp3Frame(0x41)...)
	payload = append(payload, 0xFF, 0xFB) // truncated trailing frame
	writeMP3Segment(t, dir, 0, payload)

	artifact, err := m.Merge(context.Background(), merge.Request{SessionID: "sess-junk", SegmentDir: dir, ExpectedCount: 1})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	data, _ := os.ReadFile(artifact.Path)
	if len(data) != testFrameLen || data[0] != 0xFF || data[4] != 0x41 {
		t.Fatalf("expected one clean frame, got %d bytes", len(data))
	}
}

func TestMergeMP3RejectsMismatchedSampleRate(t *testing.T) {
	m, _ := newMerger(t, "mp3")
	dir := filepath.Join(t.TempDir(), "sess-rate")
	writeMP3Segment(t, dir, 0, mp3Frame(0x11))
	// Same bitrate at 48 kHz: 384-byte frames.
	other := bytes.Repeat([]byte{0x11}, 384)
	copy(other, []byte{0xFF, 0xFB, 0x94, 0xC0})
	writeMP3Segment(t, dir, 1, other)

	_, err := m.Merge(context.Background(), merge.Request{SessionID: "sess-rate", SegmentDir: dir, ExpectedCount: 2})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(dir); statErr != nil {
		t.Fatalf("segment dir must survive a failed merge: %v", statErr)
	}
}

func TestMergeRefusesMissingSegments(t *testing.T) {
	m, cfg := newMerger(t, "mp3")
	dir := filepath.Join(t.TempDir(), "sess-2")
	writeMP3Segment(t, dir, 0, mp3Frame(0x11))
	writeMP3Segment(t, dir, 1, mp3Frame(0x11))

	_, err := m.Merge(context.Background(), merge.Request{SessionID: "sess-2", SegmentDir: dir, ExpectedCount: 3})
	if !errors.Is(err, services.ErrMissingSegments) {
		t.Fatalf("expected missing segments error, got %v", err)
	}
	var missing *services.MissingSegmentError
	if !errors.As(err, &missing) || !reflect.DeepEqual(missing.Missing, []int{2}) {
		t.Fatalf("unexpected missing detail: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.ArtifactDir, "sess-2.mp3")); !os.IsNotExist(err) {
		t.Fatalf("expected no artifact, got %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("segment dir must survive a refused merge: %v", err)
	}
}

func TestMergeRejectsUnknownKind(t *testing.T) {
	if _, err := merge.ParseKind("podcast"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	kind, err := merge.ParseKind("")
	if err != nil || kind != merge.KindArticle {
		t.Fatalf("expected article default, got %q (%v)", kind, err)
	}
}

func writeWAVSegment(t *testing.T, dir string, index, samples int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(filepath.Join(dir, session.SegmentFileName(index, ".wav")))
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	data := make([]int, samples)
	for i := range data {
		data[i] = 1000
	}
	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: 8000}, Data: data, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func TestMergeWAVConcatenatesPCM(t *testing.T) {
	m, _ := newMerger(t, "wav")
	dir := filepath.Join(t.TempDir(), "sess-wav")
	writeWAVSegment(t, dir, 0, 800)
	writeWAVSegment(t, dir, 1, 800)

	artifact, err := m.Merge(context.Background(), merge.Request{
		SessionID:     "sess-wav",
		SegmentDir:    dir,
		ExpectedCount: 2,
		Kind:          merge.KindClip,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	// 1000ms of silence at 8 kHz between two 800-sample segments.
	if len(buf.Data) != 800+8000+800 {
		t.Fatalf("expected 9600 samples, got %d", len(buf.Data))
	}
	if buf.Data[0] != 1000 || buf.Data[800] != 0 || buf.Data[len(buf.Data)-1] != 1000 {
		t.Fatalf("unexpected sample layout")
	}
}
