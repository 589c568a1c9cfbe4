package merge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"narrator/internal/services"
)

// codec concatenates input files into dst with silence between neighbours.
type codec interface {
	concat(ctx context.Context, dst *os.File, inputs []string, silence time.Duration) error
}

func codecFor(ext string) (codec, error) {
	switch strings.ToLower(ext) {
	case ".mp3":
		return mp3Codec{}, nil
	case ".wav":
		return wavCodec{}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "merge", "codec", fmt.Sprintf("no merge codec for %q", ext), nil)
	}
}
