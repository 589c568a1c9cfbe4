package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"narrator/internal/events"
	"narrator/internal/logging"
	"narrator/internal/merge"
	"narrator/internal/notifications"
	"narrator/internal/queue"
	"narrator/internal/services"
)

// ArtifactRoute is the URL prefix under which artifacts are served.
const ArtifactRoute = "/artifacts/"

// MergeResult is returned by MergeSession.
type MergeResult struct {
	ArtifactURL string `json:"artifactUrl"`
	Filename    string `json:"filename"`
	Segments    int    `json:"segments"`
	Bytes       int64  `json:"bytes"`
}

// ArtifactInfo describes an owner's merged narration.
type ArtifactInfo struct {
	SessionID   string    `json:"sessionId"`
	Filename    string    `json:"filename"`
	ArtifactURL string    `json:"artifactUrl"`
	Text        string    `json:"text"`
	MergedAt    time.Time `json:"mergedAt"`
}

// CleanupReport lists what CleanupOwnerAudio removed.
type CleanupReport struct {
	RemovedFiles    []string `json:"removedFiles"`
	RemovedDirs     []string `json:"removedDirs"`
	RemovedSessions int64    `json:"removedSessions"`
}

// MergeSession merges a complete session into one artifact. Missing segments
// fail with *services.MissingSegmentError and leave everything in place.
// A non-positive totalSegments and an empty originalText fall back to the
// session record.
func (s *Service) MergeSession(ctx context.Context, sessionID string, totalSegments int, originalText string, kind merge.Kind) (MergeResult, error) {
	if err := validateSessionID(sessionID); err != nil {
		return MergeResult{}, err
	}
	record, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return MergeResult{}, err
	}
	if record != nil {
		if totalSegments <= 0 {
			totalSegments = record.TotalSegments
		}
		if strings.TrimSpace(originalText) == "" {
			originalText = record.OriginalText
		}
	}

	ctx = services.WithSessionID(ctx, sessionID)
	logger := logging.WithContext(ctx, s.logger)

	artifact, err := s.merger.Merge(ctx, merge.Request{
		SessionID:     sessionID,
		SegmentDir:    s.layout.Dir(sessionID),
		ExpectedCount: totalSegments,
		OriginalText:  originalText,
		Kind:          kind,
	})
	if err != nil {
		var missing *services.MissingSegmentError
		if !errors.As(err, &missing) {
			s.notifyError(ctx, "merge "+sessionID, err)
			return MergeResult{}, err
		}
		s.attachSegmentErrors(ctx, missing)
		return MergeResult{}, err
	}

	if record != nil {
		if err := s.store.MarkSessionMerged(ctx, sessionID, artifact.Filename, originalText, artifact.Segments); err != nil {
			logging.WarnWithContext(logger, "failed to record merged session", "session_record_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "artifact exists but the session still reads as active"),
			)
		}
		if record.State == queue.SessionActive {
			s.metrics.SessionFinished(ctx)
		}
	}

	result := MergeResult{
		ArtifactURL: ArtifactRoute + artifact.Filename,
		Filename:    artifact.Filename,
		Segments:    artifact.Segments,
		Bytes:       artifact.Bytes,
	}

	ownerID := ""
	elapsed := 0
	if record != nil {
		ownerID = record.OwnerID
		elapsed = int(time.Since(record.CreatedAt).Seconds())
	}
	if err := s.notifier.Publish(ctx, notifications.EventSessionMerged, notifications.Payload{
		"filename":       artifact.Filename,
		"segments":       artifact.Segments,
		"elapsedSeconds": elapsed,
	}); err != nil {
		logger.Debug("merge notification failed", logging.Error(err))
	}
	if err := s.events.Publish(ctx, events.Event{
		Kind:      events.KindSessionMerged,
		OwnerID:   ownerID,
		SessionID: sessionID,
		Artifact:  result.ArtifactURL,
	}); err != nil {
		logging.WarnWithContext(logger, "event publish failed", "event_publish_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check events.nats_url"),
		)
	}
	return result, nil
}

// LatestArtifact returns the owner's newest merged narration whose file still
// exists, together with its sidecar text.
func (s *Service) LatestArtifact(ctx context.Context, ownerID string) (ArtifactInfo, error) {
	if err := validateOwner(ownerID); err != nil {
		return ArtifactInfo{}, err
	}
	records, err := s.store.ListSessions(ctx, ownerID, queue.SessionMerged)
	if err != nil {
		return ArtifactInfo{}, err
	}
	for _, record := range records {
		if record.ArtifactFile == "" {
			continue
		}
		path := filepath.Join(s.merger.ArtifactDir(), record.ArtifactFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		text := record.OriginalText
		if data, err := os.ReadFile(sidecarPath(path)); err == nil {
			text = string(data)
		}
		return ArtifactInfo{
			SessionID:   record.ID,
			Filename:    record.ArtifactFile,
			ArtifactURL: ArtifactRoute + record.ArtifactFile,
			Text:        text,
			MergedAt:    record.UpdatedAt,
		}, nil
	}
	return ArtifactInfo{}, services.Wrap(services.ErrNotFound, "pipeline", "latest artifact",
		fmt.Sprintf("no merged narration for owner %s", ownerID), nil)
}

// CleanupOwnerAudio removes every artifact, sidecar and segment directory that
// belongs to the owner, then drops the session records.
func (s *Service) CleanupOwnerAudio(ctx context.Context, ownerID string) (CleanupReport, error) {
	if err := validateOwner(ownerID); err != nil {
		return CleanupReport{}, err
	}
	records, err := s.store.ListSessions(ctx, ownerID)
	if err != nil {
		return CleanupReport{}, err
	}
	report := CleanupReport{RemovedFiles: []string{}, RemovedDirs: []string{}}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
		name := record.ArtifactFile
		if name == "" {
			name = s.merger.ArtifactName(record.ID)
		}
		artifactPath := filepath.Join(s.merger.ArtifactDir(), name)
		for _, path := range []string{artifactPath, sidecarPath(artifactPath)} {
			removed, err := removeIfExists(path)
			if err != nil {
				return report, err
			}
			if removed {
				report.RemovedFiles = append(report.RemovedFiles, filepath.Base(path))
			}
		}
		dir := s.layout.Dir(record.ID)
		if _, err := os.Stat(dir); err == nil {
			if err := os.RemoveAll(dir); err != nil {
				return report, fmt.Errorf("remove session dir: %w", err)
			}
			report.RemovedDirs = append(report.RemovedDirs, record.ID)
		}
	}
	removed, err := s.store.DeleteSessions(ctx, ids...)
	if err != nil {
		return report, err
	}
	report.RemovedSessions = removed

	logging.WithContext(services.WithOwnerID(ctx, ownerID), s.logger).Info("owner audio removed",
		logging.Int("files", len(report.RemovedFiles)),
		logging.Int("dirs", len(report.RemovedDirs)),
		logging.Int64("sessions", removed),
		logging.String(logging.FieldEventType, "owner_audio_removed"),
	)
	return report, nil
}

func (s *Service) notifyError(ctx context.Context, label string, cause error) {
	if err := s.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"context": label,
		"error":   cause,
	}); err != nil {
		s.logger.Debug("error notification failed", logging.Error(err))
	}
}

func sidecarPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + ".txt"
}

func removeIfExists(path string) (bool, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
}

func (s *Service) attachSegmentErrors(ctx context.Context, missing *services.MissingSegmentError) {
	recorded, err := s.store.SegmentErrors(ctx, missing.SessionID)
	if err != nil {
		s.logger.Debug("segment errors unavailable", logging.Error(err))
		return
	}
	for _, idx := range missing.Missing {
		message, ok := recorded[idx]
		if !ok {
			continue
		}
		if missing.Errors == nil {
			missing.Errors = make(map[int]string)
		}
		missing.Errors[idx] = message
	}
}
