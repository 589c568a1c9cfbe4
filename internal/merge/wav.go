package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"narrator/internal/services"
)

const wavFormatPCM = 1

type wavFormat struct {
	sampleRate int
	bitDepth   int
	channels   int
}

type wavCodec struct{}

func (wavCodec) concat(ctx context.Context, dst *os.File, inputs []string, silence time.Duration) error {
	var (
		enc *wav.Encoder
		ref wavFormat
	)
	for i, path := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf, format, err := decodeWAV(path)
		if err != nil {
			return err
		}
		if i == 0 {
			ref = format
			enc = wav.NewEncoder(dst, ref.sampleRate, ref.bitDepth, ref.channels, wavFormatPCM)
		} else {
			if format != ref {
				return services.Wrap(services.ErrValidation, "merge", "wav",
					fmt.Sprintf("%s format %+v differs from first segment %+v", filepath.Base(path), format, ref), nil)
			}
			if gap := silenceBuffer(ref, silence); gap != nil {
				if err := enc.Write(gap); err != nil {
					return fmt.Errorf("write silence: %w", err)
				}
			}
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("write pcm: %w", err)
		}
	}
	if enc == nil {
		return services.Wrap(services.ErrValidation, "merge", "wav", "no segments to merge", nil)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

func decodeWAV(path string) (*audio.IntBuffer, wavFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wavFormat{}, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, wavFormat{}, services.Wrap(services.ErrValidation, "merge", "wav", fmt.Sprintf("%s is not a valid wav file", filepath.Base(path)), nil)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, wavFormat{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, wavFormat{}, services.Wrap(services.ErrValidation, "merge", "wav", fmt.Sprintf("%s is not PCM", filepath.Base(path)), nil)
	}
	return buf, wavFormat{
		sampleRate: int(dec.SampleRate),
		bitDepth:   int(dec.BitDepth),
		channels:   int(dec.NumChans),
	}, nil
}

func silenceBuffer(f wavFormat, d time.Duration) *audio.IntBuffer {
	frames := int(int64(d) * int64(f.sampleRate) / int64(time.Second))
	if frames <= 0 {
		return nil
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.channels, SampleRate: f.sampleRate},
		Data:           make([]int, frames*f.channels),
		SourceBitDepth: f.bitDepth,
	}
}
