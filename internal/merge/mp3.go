package merge

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tcolgate/mp3"

	"narrator/internal/services"
)

// maxFrameSize is above the largest frame any MPEG audio header describes.
const maxFrameSize = 4096

// streamFormat is the layout every segment must share with the first one.
type streamFormat struct {
	version    mp3.FrameVersion
	layer      mp3.FrameLayer
	sampleRate mp3.FrameSampleRate
}

func formatOf(h mp3.FrameHeader) streamFormat {
	return streamFormat{version: h.Version(), layer: h.Layer(), sampleRate: h.SampleRate()}
}

// gapFrames is the run of silent frames written between two segments.
type gapFrames struct {
	frame []byte
	count int
}

// silentGap builds frames with h's stream parameters and an all-zero payload,
// which Layer III decoders render as silence, enough to cover d.
func silentGap(h mp3.FrameHeader, d time.Duration) (gapFrames, error) {
	buf := make([]byte, maxFrameSize)
	copy(buf, h)
	buf[1] |= 0x01  // no CRC
	buf[2] &^= 0x02 // no padding

	var (
		f       mp3.Frame
		skipped int
	)
	if err := mp3.NewDecoder(bytes.NewReader(buf)).Decode(&f, &skipped); err != nil {
		return gapFrames{}, fmt.Errorf("build silent frame: %w", err)
	}
	if skipped != 0 {
		return gapFrames{}, errors.New("build silent frame: header not accepted")
	}
	frame, err := io.ReadAll(f.Reader())
	if err != nil {
		return gapFrames{}, fmt.Errorf("build silent frame: %w", err)
	}
	return gapFrames{frame: frame, count: silentFrameCount(f.Samples(), int(h.SampleRate()), d)}, nil
}

// silentFrameCount returns how many frames of samples cover d, rounding up.
func silentFrameCount(samples, sampleRate int, d time.Duration) int {
	if d <= 0 || samples <= 0 {
		return 0
	}
	perFrame := int64(time.Second) * int64(samples)
	return int((int64(d)*int64(sampleRate) + perFrame - 1) / perFrame)
}

func stripID3(data []byte) []byte {
	if len(data) >= 10 && bytes.Equal(data[:3], []byte("ID3")) {
		size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
		size += 10
		if data[5]&0x10 != 0 {
			size += 10
		}
		if size > len(data) {
			size = len(data)
		}
		data = data[size:]
	}
	if len(data) >= 128 && bytes.Equal(data[len(data)-128:len(data)-125], []byte("TAG")) {
		data = data[:len(data)-128]
	}
	return data
}

// isInfoFrame reports whether frame carries a Xing, Info or VBRI header
// rather than audio.
func isInfoFrame(f *mp3.Frame, frame []byte) bool {
	h := f.Header()
	offset := 4
	if h.Protection() {
		offset += 2
	}
	if h.Layer() == mp3.Layer3 {
		if n, err := f.SideInfoLength(); err == nil {
			offset += n
		}
	}
	for _, candidate := range []struct {
		at  int
		tag string
	}{{offset, "Xing"}, {offset, "Info"}, {36, "VBRI"}} {
		if len(frame) >= candidate.at+4 && string(frame[candidate.at:candidate.at+4]) == candidate.tag {
			return true
		}
	}
	return false
}

// eachFrame calls fn for every audio frame of an MP3 stream, with tags and
// any leading info frame removed. The frame slice is only valid during fn.
// A truncated trailing frame ends the stream.
func eachFrame(data []byte, fn func(h mp3.FrameHeader, frame []byte) error) error {
	dec := mp3.NewDecoder(bytes.NewReader(stripID3(data)))
	var (
		f       mp3.Frame
		skipped int
		raw     bytes.Buffer
		first   = true
	)
	for {
		err := dec.Decode(&f, &skipped)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode mp3 frame: %w", err)
		}
		raw.Reset()
		if _, err := raw.ReadFrom(f.Reader()); err != nil {
			return fmt.Errorf("read mp3 frame: %w", err)
		}
		if first {
			first = false
			if isInfoFrame(&f, raw.Bytes()) {
				continue
			}
		}
		if err := fn(f.Header(), raw.Bytes()); err != nil {
			return err
		}
	}
}

type mp3Codec struct{}

func (mp3Codec) concat(ctx context.Context, dst *os.File, inputs []string, silence time.Duration) error {
	w := bufio.NewWriterSize(dst, 256*1024)
	var (
		ref streamFormat
		gap gapFrames
	)
	for i, path := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read segment: %w", err)
		}
		name := filepath.Base(path)
		frames := 0
		err = eachFrame(data, func(h mp3.FrameHeader, frame []byte) error {
			if frames == 0 {
				if err := startSegment(w, i, name, h, &ref, &gap, silence); err != nil {
					return err
				}
			}
			frames++
			if _, err := w.Write(frame); err != nil {
				return fmt.Errorf("write frames: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if frames == 0 {
			return services.Wrap(services.ErrValidation, "merge", "mp3", fmt.Sprintf("%s contains no mp3 frames", name), nil)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	return nil
}

// startSegment fixes the stream format on the first segment and writes the
// silence gap ahead of every later one.
func startSegment(w io.Writer, index int, name string, h mp3.FrameHeader, ref *streamFormat, gap *gapFrames, silence time.Duration) error {
	got := formatOf(h)
	if index == 0 {
		built, err := silentGap(h, silence)
		if err != nil {
			return err
		}
		*ref, *gap = got, built
		return nil
	}
	if got != *ref {
		return services.Wrap(services.ErrValidation, "merge", "mp3",
			fmt.Sprintf("%s uses %d Hz %v %v, first segment uses %d Hz %v %v",
				name, got.sampleRate, got.version, got.layer, ref.sampleRate, ref.version, ref.layer), nil)
	}
	for j := 0; j < gap.count; j++ {
		if _, err := w.Write(gap.frame); err != nil {
			return fmt.Errorf("write silence: %w", err)
		}
	}
	return nil
}
