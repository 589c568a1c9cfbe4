package pipeline

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"

	"narrator/internal/logging"
	"narrator/internal/queue"
	"narrator/internal/segment"
	"narrator/internal/services"
	"narrator/internal/session"
	"narrator/internal/textutil"
)

// Submission is returned by SubmitLongText.
type Submission struct {
	SessionID     string `json:"sessionId"`
	TotalSegments int    `json:"totalSegments"`
}

// Preparation is a dry-run segmentation.
type Preparation struct {
	SegmentsCount int               `json:"segmentsCount"`
	Segments      []segment.Preview `json:"segments"`
}

// SegmentResult describes one synchronously generated segment.
type SegmentResult struct {
	SegmentIndex int    `json:"segmentIndex"`
	SegmentPath  string `json:"segmentPath"`
	TextLength   int    `json:"textLength"`
}

// SubmitLongText segments text, records the session, and dispatches every
// segment to the synthesis pool. It returns before any audio exists.
func (s *Service) SubmitLongText(ctx context.Context, ownerID, text string) (Submission, error) {
	if err := validateOwner(ownerID); err != nil {
		return Submission{}, err
	}
	text = textutil.NormalizeText(text)
	if text == "" {
		return Submission{}, services.Wrap(services.ErrValidation, "pipeline", "submit", "text is required", nil)
	}

	segments := s.policy.Plan(text)
	id := uuid.NewString()
	record := queue.Session{
		ID:           id,
		OwnerID:      ownerID,
		TextLength:   utf8.RuneCountInString(text),
		OriginalText: text,
	}
	if err := s.store.CreateSession(ctx, record, segments); err != nil {
		return Submission{}, err
	}
	s.metrics.SessionStarted(ctx)

	jobs := make([]job, len(segments))
	for i, seg := range segments {
		jobs[i] = job{sessionID: id, ownerID: ownerID, index: i, text: seg}
	}
	if _, err := s.pool.submit(jobs...); err != nil {
		return Submission{}, services.Wrap(services.ErrConfiguration, "pipeline", "dispatch",
			fmt.Sprintf("session %s recorded but not dispatched", id), err)
	}

	logging.WithContext(services.WithSessionID(ctx, id), s.logger).Info("session submitted",
		logging.String(logging.FieldOwnerID, ownerID),
		logging.Int("total_segments", len(segments)),
		logging.Int("text_length", record.TextLength),
		logging.String(logging.FieldEventType, "session_submitted"),
	)
	return Submission{SessionID: id, TotalSegments: len(segments)}, nil
}

// PrepareSession previews the segmentation of text without recording or
// dispatching anything.
func (s *Service) PrepareSession(text string) (Preparation, error) {
	text = textutil.NormalizeText(text)
	if text == "" {
		return Preparation{}, services.Wrap(services.ErrValidation, "pipeline", "prepare", "text is required", nil)
	}
	segments := s.policy.Plan(text)
	return Preparation{SegmentsCount: len(segments), Segments: segment.Previews(segments)}, nil
}

// GenerateSegment synthesizes one segment synchronously. Callers that drive
// segmentation themselves use it to fill a session one index at a time.
func (s *Service) GenerateSegment(ctx context.Context, sessionID, ownerID string, index int, text string) (SegmentResult, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SegmentResult{}, err
	}
	if index < 0 {
		return SegmentResult{}, services.Wrap(services.ErrValidation, "pipeline", "segment", fmt.Sprintf("invalid segment index %d", index), nil)
	}
	text = textutil.NormalizeText(text)
	if text == "" {
		return SegmentResult{}, services.Wrap(services.ErrValidation, "pipeline", "segment", "text is required", nil)
	}

	existing, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return SegmentResult{}, err
	}
	if existing == nil {
		if _, err := s.store.EnsureSession(ctx, sessionID, ownerID); err != nil {
			return SegmentResult{}, err
		}
		s.metrics.SessionStarted(ctx)
	}
	if err := s.store.PutSegmentText(ctx, sessionID, index, text); err != nil {
		return SegmentResult{}, err
	}

	// A pooled job for the same index keeps its slot; the worker coalesces
	// the two writers onto one request.
	key := jobKey{sessionID: sessionID, index: index}
	if s.pool.reserve(key) {
		defer s.pool.release(key)
	}

	ctx = services.WithSessionID(ctx, sessionID)
	path, err := s.synth.Synthesize(ctx, text, s.layout.Dir(sessionID), index)
	if err != nil {
		s.recordSegmentError(ctx, sessionID, index, err)
		return SegmentResult{}, err
	}
	return SegmentResult{SegmentIndex: index, SegmentPath: path, TextLength: utf8.RuneCountInString(text)}, nil
}

// GetSegmentStatus scans the session directory. A non-positive totalSegments
// falls back to the recorded count, then to inference from the files.
func (s *Service) GetSegmentStatus(ctx context.Context, sessionID string, totalSegments int) (session.Progress, error) {
	if err := validateSessionID(sessionID); err != nil {
		return session.Progress{}, err
	}
	if totalSegments <= 0 {
		record, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return session.Progress{}, err
		}
		if record != nil {
			totalSegments = record.TotalSegments
		}
	}
	return session.Scan(s.layout.Dir(sessionID), s.layout.Ext, totalSegments)
}

// ResumeSession re-dispatches exactly the missing segments of a recorded
// session, using the stored segment texts. It returns the dispatched indices.
func (s *Service) ResumeSession(ctx context.Context, sessionID string) ([]int, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	record, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "resume", fmt.Sprintf("session %s not found", sessionID), nil)
	}
	if record.State == queue.SessionMerged {
		return []int{}, nil
	}
	progress, err := session.Scan(s.layout.Dir(sessionID), s.layout.Ext, record.TotalSegments)
	if err != nil {
		return nil, err
	}
	if len(progress.Missing) == 0 {
		return []int{}, nil
	}
	texts, err := s.store.SegmentTexts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	logger := logging.WithContext(services.WithSessionID(ctx, sessionID), s.logger)
	jobs := make([]job, 0, len(progress.Missing))
	for _, idx := range progress.Missing {
		text, ok := texts[idx]
		if !ok {
			logging.WarnWithContext(logger, "no recorded text for missing segment", "resume_text_missing",
				logging.Int(logging.FieldSegmentIndex, idx),
				logging.String(logging.FieldErrorHint, "submit the segment text again"),
				logging.String(logging.FieldImpact, "segment stays missing"),
			)
			continue
		}
		jobs = append(jobs, job{sessionID: sessionID, ownerID: record.OwnerID, index: idx, text: text})
	}
	dispatched, err := s.pool.submit(jobs...)
	if err != nil {
		return nil, err
	}
	sort.Ints(dispatched)
	if len(dispatched) > 0 {
		logger.Info("session resumed",
			logging.Int("dispatched", len(dispatched)),
			logging.Int("completed", len(progress.Completed)),
			logging.String(logging.FieldEventType, "session_resumed"),
		)
	}
	return dispatched, nil
}

// FindUnfinished lists an owner's active sessions that already have at least
// one segment on disk, newest first.
func (s *Service) FindUnfinished(ctx context.Context, ownerID string) ([]session.Unfinished, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	records, err := s.store.ListSessions(ctx, ownerID, queue.SessionActive)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int, len(records))
	for _, record := range records {
		totals[record.ID] = record.TotalSegments
	}
	found, err := session.FindUnfinished(s.layout.Root, s.layout.Ext, func(id string) bool {
		_, ok := totals[id]
		return ok
	})
	if err != nil {
		return nil, err
	}
	for i := range found {
		if total := totals[found[i].SessionID]; total > 0 {
			progress, err := session.Scan(found[i].Dir, s.layout.Ext, total)
			if err != nil {
				return nil, err
			}
			found[i].Progress = progress
		}
	}
	if found == nil {
		found = []session.Unfinished{}
	}
	return found, nil
}
