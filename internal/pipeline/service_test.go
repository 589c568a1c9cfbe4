package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"narrator/internal/config"
	"narrator/internal/events"
	"narrator/internal/merge"
	"narrator/internal/notifications"
	"narrator/internal/pipeline"
	"narrator/internal/queue"
	"narrator/internal/segment"
	"narrator/internal/services"
	"narrator/internal/synth"
	"narrator/internal/testsupport"
	"narrator/internal/tts"
	"narrator/internal/workflow"
)

func frameSynth(calls *atomic.Int64) tts.Func {
	return func(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
		if calls != nil {
			calls.Add(1)
		}
		return io.NopCloser(bytes.NewReader(testsupport.MP3Frames(1))), nil
	}
}

type recorder struct {
	mu            sync.Mutex
	notifications []notifications.Event
	events        []events.Event
}

func (r *recorder) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, event)
	return nil
}

type eventRecorder struct{ r *recorder }

func (e eventRecorder) Publish(_ context.Context, event events.Event) error {
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	e.r.events = append(e.r.events, event)
	return nil
}

func (eventRecorder) Close() {}

type harness struct {
	svc   *pipeline.Service
	cfg   *config.Config
	store *queue.Store
	rec   *recorder
}

func newHarness(t *testing.T, fn tts.Func) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	worker, err := synth.New(cfg, fn, synth.WithSleeper(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}
	merger, err := merge.New(cfg)
	if err != nil {
		t.Fatalf("merge.New: %v", err)
	}
	rec := &recorder{}
	svc, err := pipeline.New(cfg, store, worker, merger,
		pipeline.WithNotifier(rec),
		pipeline.WithEvents(eventRecorder{r: rec}),
	)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(svc.Stop)
	return &harness{svc: svc, cfg: cfg, store: store, rec: rec}
}

func longText(minChars int) string {
	var b strings.Builder
	for i := 1; b.Len() < minChars; i++ {
		fmt.Fprintf(&b, "Sentence number %d carries a little narration for the listener. ", i)
	}
	return strings.TrimSpace(b.String())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	waitFor(t, "pool to go idle", func() bool {
		status, err := h.svc.Status(context.Background())
		return err == nil && status.Pool.Queued == 0 && status.Pool.Active == 0
	})
}

func TestSubmitLongTextThenMerge(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	ctx := context.Background()
	text := longText(5000)

	sub, err := h.svc.SubmitLongText(ctx, "owner-1", text)
	if err != nil {
		t.Fatalf("SubmitLongText: %v", err)
	}
	if sub.TotalSegments < 3 || sub.TotalSegments > 12 {
		t.Fatalf("segment count %d outside policy bounds", sub.TotalSegments)
	}

	waitFor(t, "all segments", func() bool {
		progress, err := h.svc.GetSegmentStatus(ctx, sub.SessionID, sub.TotalSegments)
		return err == nil && progress.CompletionRate == 1
	})

	result, err := h.svc.MergeSession(ctx, sub.SessionID, sub.TotalSegments, "", merge.KindArticle)
	if err != nil {
		t.Fatalf("MergeSession: %v", err)
	}
	if result.Filename != sub.SessionID+".mp3" || result.ArtifactURL != "/artifacts/"+sub.SessionID+".mp3" {
		t.Fatalf("unexpected merge result %+v", result)
	}
	if result.Segments != sub.TotalSegments {
		t.Fatalf("merged %d segments, want %d", result.Segments, sub.TotalSegments)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.ArtifactDir, result.Filename)); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if _, err := os.Stat(h.svc.Layout().Dir(sub.SessionID)); !os.IsNotExist(err) {
		t.Fatalf("expected segment directory removed, stat err=%v", err)
	}

	latest, err := h.svc.LatestArtifact(ctx, "owner-1")
	if err != nil {
		t.Fatalf("LatestArtifact: %v", err)
	}
	if latest.SessionID != sub.SessionID || latest.Text != text {
		t.Fatalf("unexpected latest artifact %+v", latest)
	}

	record, err := h.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if record.State != queue.SessionMerged {
		t.Fatalf("session state = %s", record.State)
	}

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if len(h.rec.events) != 1 || h.rec.events[0].Kind != events.KindSessionMerged || h.rec.events[0].OwnerID != "owner-1" {
		t.Fatalf("unexpected events %+v", h.rec.events)
	}
	if len(h.rec.notifications) != 1 || h.rec.notifications[0] != notifications.EventSessionMerged {
		t.Fatalf("unexpected notifications %v", h.rec.notifications)
	}
}

func TestSubmitShortTextIsOneSegment(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	sub, err := h.svc.SubmitLongText(context.Background(), "owner-1", "  Just one short line.  ")
	if err != nil {
		t.Fatalf("SubmitLongText: %v", err)
	}
	if sub.TotalSegments != 1 {
		t.Fatalf("expected 1 segment, got %d", sub.TotalSegments)
	}
}

func TestSubmitLongTextValidatesInput(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	if _, err := h.svc.SubmitLongText(context.Background(), "", "text"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing owner, got %v", err)
	}
	if _, err := h.svc.SubmitLongText(context.Background(), "owner", "   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty text, got %v", err)
	}
}

func TestMergeReportsMissingSegments(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	frames := frameSynth(nil)
	h := newHarness(t, func(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
		if failing.Load() && req.Text == "Segment 1." {
			return nil, errors.New("upstream unavailable")
		}
		return frames(ctx, req)
	})
	ctx := context.Background()
	for _, idx := range []int{0, 1, 2} {
		_, err := h.svc.GenerateSegment(ctx, "client-1", "owner-2", idx, fmt.Sprintf("Segment %d.", idx))
		if idx == 1 {
			if err == nil {
				t.Fatal("expected segment 1 to fail")
			}
			continue
		}
		if err != nil {
			t.Fatalf("GenerateSegment(%d): %v", idx, err)
		}
	}

	_, err := h.svc.MergeSession(ctx, "client-1", 3, "full text", merge.KindArticle)
	var missing *services.MissingSegmentError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSegmentError, got %v", err)
	}
	if !reflect.DeepEqual(missing.Missing, []int{1}) {
		t.Fatalf("missing = %v, want [1]", missing.Missing)
	}
	if len(missing.Errors) != 1 || !strings.Contains(missing.Errors[1], "upstream unavailable") {
		t.Fatalf("segment errors = %v", missing.Errors)
	}
	if services.HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("status = %d", services.HTTPStatus(err))
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.ArtifactDir, "client-1.mp3")); !os.IsNotExist(err) {
		t.Fatalf("artifact must not exist, stat err=%v", err)
	}

	failing.Store(false)
	if _, err := h.svc.GenerateSegment(ctx, "client-1", "owner-2", 1, "Segment 1."); err != nil {
		t.Fatalf("GenerateSegment(1): %v", err)
	}
	if _, err := h.svc.MergeSession(ctx, "client-1", 0, "full text", merge.KindClip); err != nil {
		t.Fatalf("MergeSession after regeneration: %v", err)
	}
}

func TestGenerateSegmentIsIdempotent(t *testing.T) {
	var calls atomic.Int64
	h := newHarness(t, frameSynth(&calls))
	ctx := context.Background()
	first, err := h.svc.GenerateSegment(ctx, "client-2", "owner", 4, "Hello there.")
	if err != nil {
		t.Fatalf("GenerateSegment: %v", err)
	}
	second, err := h.svc.GenerateSegment(ctx, "client-2", "owner", 4, "Hello there.")
	if err != nil {
		t.Fatalf("GenerateSegment again: %v", err)
	}
	if first.SegmentPath != second.SegmentPath || filepath.Base(first.SegmentPath) != "segment_004.mp3" {
		t.Fatalf("unexpected paths %q %q", first.SegmentPath, second.SegmentPath)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one remote call, got %d", calls.Load())
	}
}

func TestGenerateSegmentRejectsUnsafeSessionID(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	for _, id := range []string{"", "..", "a/b", " padded"} {
		if _, err := h.svc.GenerateSegment(context.Background(), id, "owner", 0, "Text."); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("id %q: expected validation error, got %v", id, err)
		}
	}
}

func TestResumeSessionDispatchesOnlyMissing(t *testing.T) {
	text := longText(5000)
	cfgProbe := testsupport.NewConfig(t)
	segments := segment.PolicyFromConfig(cfgProbe).Plan(text)
	if len(segments) < 3 {
		t.Fatalf("expected several segments, got %d", len(segments))
	}
	poisoned := segments[1]

	var healthy atomic.Bool
	var calls atomic.Int64
	fn := func(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
		calls.Add(1)
		if req.Text == poisoned && !healthy.Load() {
			return nil, &tts.StatusError{StatusCode: http.StatusUnauthorized}
		}
		return io.NopCloser(bytes.NewReader(testsupport.MP3Frames(1))), nil
	}
	h := newHarness(t, fn)
	ctx := context.Background()

	sub, err := h.svc.SubmitLongText(ctx, "owner-3", text)
	if err != nil {
		t.Fatalf("SubmitLongText: %v", err)
	}
	h.waitIdle(t)

	progress, err := h.svc.GetSegmentStatus(ctx, sub.SessionID, 0)
	if err != nil {
		t.Fatalf("GetSegmentStatus: %v", err)
	}
	if !reflect.DeepEqual(progress.Missing, []int{1}) {
		t.Fatalf("missing = %v, want [1]", progress.Missing)
	}
	record, err := h.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if record.LastError == "" {
		t.Fatal("expected session error to be recorded")
	}

	healthy.Store(true)
	before := calls.Load()
	dispatched, err := h.svc.ResumeSession(ctx, sub.SessionID)
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if !reflect.DeepEqual(dispatched, []int{1}) {
		t.Fatalf("dispatched = %v, want [1]", dispatched)
	}
	h.waitIdle(t)
	if got := calls.Load() - before; got != 1 {
		t.Fatalf("expected exactly one remote call on resume, got %d", got)
	}
	progress, err = h.svc.GetSegmentStatus(ctx, sub.SessionID, 0)
	if err != nil {
		t.Fatalf("GetSegmentStatus: %v", err)
	}
	if !progress.Done() {
		t.Fatalf("expected session complete, got %+v", progress)
	}
}

func TestResumeUnknownSession(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	if _, err := h.svc.ResumeSession(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindUnfinishedFiltersByOwner(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	ctx := context.Background()
	if _, err := h.svc.GenerateSegment(ctx, "mine", "owner-a", 0, "First."); err != nil {
		t.Fatalf("GenerateSegment: %v", err)
	}
	if _, err := h.svc.GenerateSegment(ctx, "theirs", "owner-b", 0, "First."); err != nil {
		t.Fatalf("GenerateSegment: %v", err)
	}

	found, err := h.svc.FindUnfinished(ctx, "owner-a")
	if err != nil {
		t.Fatalf("FindUnfinished: %v", err)
	}
	if len(found) != 1 || found[0].SessionID != "mine" {
		t.Fatalf("unexpected unfinished sessions %+v", found)
	}
	if !reflect.DeepEqual(found[0].Progress.Completed, []int{0}) {
		t.Fatalf("completed = %v", found[0].Progress.Completed)
	}
}

func TestCleanupOwnerAudio(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	ctx := context.Background()
	if _, err := h.svc.GenerateSegment(ctx, "merged-1", "owner-c", 0, "Only segment."); err != nil {
		t.Fatalf("GenerateSegment: %v", err)
	}
	if _, err := h.svc.MergeSession(ctx, "merged-1", 1, "Only segment.", merge.KindArticle); err != nil {
		t.Fatalf("MergeSession: %v", err)
	}
	if _, err := h.svc.GenerateSegment(ctx, "partial-1", "owner-c", 0, "Partial."); err != nil {
		t.Fatalf("GenerateSegment: %v", err)
	}

	report, err := h.svc.CleanupOwnerAudio(ctx, "owner-c")
	if err != nil {
		t.Fatalf("CleanupOwnerAudio: %v", err)
	}
	if len(report.RemovedFiles) != 2 || len(report.RemovedDirs) != 1 || report.RemovedSessions != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := h.svc.LatestArtifact(ctx, "owner-c"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected no artifact after cleanup, got %v", err)
	}
}

func TestPrepareSession(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	prep, err := h.svc.PrepareSession(longText(5000))
	if err != nil {
		t.Fatalf("PrepareSession: %v", err)
	}
	if prep.SegmentsCount != len(prep.Segments) || prep.SegmentsCount < 3 {
		t.Fatalf("unexpected preparation %+v", prep.SegmentsCount)
	}
	for _, p := range prep.Segments {
		if p.Length > 2200 {
			t.Fatalf("segment %d too long: %d", p.Index, p.Length)
		}
	}
}

func TestSubmitWordTaskReusesExistingClip(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	ctx := context.Background()

	accepted, err := h.svc.SubmitWordTask(ctx, "vocab-1", "Apple", "reading")
	if err != nil || !accepted {
		t.Fatalf("SubmitWordTask: accepted=%v err=%v", accepted, err)
	}
	tasks, err := h.store.ListWordTasks(ctx)
	if err != nil {
		t.Fatalf("ListWordTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}

	rel := workflow.ClipRelPath("vocab-1", queue.CategoryReading, ".mp3")
	testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.WordAudioDir, rel), 64)
	if _, err := h.store.CompleteWordTask(ctx, tasks[0].ID, rel); err != nil {
		t.Fatalf("CompleteWordTask: %v", err)
	}

	if _, err := h.svc.SubmitWordTask(ctx, "vocab-1", "APPLE", "reading"); err != nil {
		t.Fatalf("SubmitWordTask again: %v", err)
	}
	tasks, err = h.store.ListWordTasks(ctx)
	if err != nil {
		t.Fatalf("ListWordTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected existing clip to be reused, got %d tasks", len(tasks))
	}

	if _, err := h.svc.SubmitWordTask(ctx, "vocab-1", "banana", "reading"); err != nil {
		t.Fatalf("SubmitWordTask new word: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.WordAudioDir, rel)); !os.IsNotExist(err) {
		t.Fatalf("expected stale clip removed, stat err=%v", err)
	}
	records, err := h.svc.WordAudio(ctx, "vocab-1")
	if err != nil {
		t.Fatalf("WordAudio: %v", err)
	}
	if len(records) != 1 || records[0].AudioGenerated || records[0].Word != "banana" {
		t.Fatalf("unexpected owner records %+v", records)
	}
}

func TestSubmitWordTaskRejectsUnknownCategory(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	if _, err := h.svc.SubmitWordTask(context.Background(), "vocab-1", "apple", "singing"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRequeueWordAfterExhaustion(t *testing.T) {
	h := newHarness(t, frameSynth(nil))
	ctx := context.Background()
	task := testsupport.EnqueueWord(t, h.store, "vocab-5", "kiwi", queue.CategoryWriting, 1)
	if _, err := h.store.ClaimPending(ctx, 1); err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	outcome, err := h.store.FailWordTask(ctx, task.ID, "boom")
	if err != nil || !outcome.Exhausted {
		t.Fatalf("FailWordTask: outcome=%+v err=%v", outcome, err)
	}

	fresh, err := h.svc.RequeueWord(ctx, "vocab-5", "writing")
	if err != nil {
		t.Fatalf("RequeueWord: %v", err)
	}
	if fresh.ID == task.ID || fresh.Word != "kiwi" || fresh.Attempts != 0 {
		t.Fatalf("unexpected requeued task %+v", fresh)
	}

	if _, err := h.svc.RequeueWord(ctx, "nobody", "writing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
