package preflight

import (
	"context"

	"narrator/internal/config"
)

// MinFreeBytes is the free space below which the session volume check fails.
const MinFreeBytes uint64 = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunLocal executes the filesystem checks for the given config.
func RunLocal(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Session directory", cfg.Paths.SessionDir),
		CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir),
		CheckDirectoryAccess("Word audio directory", cfg.Paths.WordAudioDir),
	}
	results = append(results, CheckFreeSpace("Session volume", cfg.Paths.SessionDir, MinFreeBytes))
	return results
}

// RunAll executes the filesystem checks plus the remote service probes.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := RunLocal(cfg)
	results = append(results, CheckSpeechEndpoint(ctx, cfg.TTS.BaseURL, cfg.TTS.APIKey))
	if cfg.Events.NATSURL != "" {
		results = append(results, CheckNATS(cfg.Events.NATSURL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
