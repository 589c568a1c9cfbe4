package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"narrator/internal/fileutil"
	"narrator/internal/logging"
	"narrator/internal/queue"
	"narrator/internal/services"
	"narrator/internal/textutil"
	"narrator/internal/workflow"
)

// SubmitWordTask records a clip request for the owner's word in category. It
// never synthesizes inline. When a clip for the same word already exists the
// owner record is marked ready and no task is created.
func (s *Service) SubmitWordTask(ctx context.Context, ownerID, word, category string) (bool, error) {
	if err := validateOwner(ownerID); err != nil {
		return false, err
	}
	cat, err := queue.ParseCategory(category)
	if err != nil {
		return false, err
	}
	word = textutil.NormalizeWord(word)
	if word == "" {
		return false, services.Wrap(services.ErrValidation, "pipeline", "submit word", "word is required", nil)
	}

	ctx = services.WithOwnerID(ctx, ownerID)
	logger := logging.WithContext(ctx, s.logger)
	rel := workflow.ClipRelPath(ownerID, cat, s.synth.Extension())
	path := filepath.Join(s.cfg.Paths.WordAudioDir, rel)

	if fileutil.IsNonEmptyFile(path) {
		current, err := s.store.GetWordAudio(ctx, ownerID, cat)
		if err != nil {
			return false, err
		}
		if current != nil && textutil.FoldWord(current.Word) == textutil.FoldWord(word) {
			if err := s.store.MarkWordAudioReady(ctx, ownerID, cat, word, rel); err != nil {
				return false, err
			}
			logger.Info("word clip already present",
				logging.String("category", string(cat)),
				logging.String(logging.FieldEventType, "word_clip_reused"),
			)
			return true, nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("remove stale clip: %w", err)
		}
	}

	task, created, err := s.store.EnqueueWordTask(ctx, queue.WordTaskInput{
		OwnerID:     ownerID,
		Word:        word,
		Category:    cat,
		MaxAttempts: s.cfg.WordQueue.MaxAttempts,
	})
	if err != nil {
		return false, err
	}
	logger.Info("word task accepted",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("category", string(cat)),
		logging.Bool("created", created),
		logging.String(logging.FieldEventType, "word_task_accepted"),
	)
	return true, nil
}

// WordAudio returns the owner's clip records, one per category.
func (s *Service) WordAudio(ctx context.Context, ownerID string) ([]*queue.WordAudio, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	return s.store.ListWordAudio(ctx, ownerID)
}

// RequeueWord creates a fresh task for an owner whose clip is missing, for
// example after exhaustion. The exhausted task itself is never revived.
func (s *Service) RequeueWord(ctx context.Context, ownerID, category string) (*queue.WordTask, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	cat, err := queue.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	current, err := s.store.GetWordAudio(ctx, ownerID, cat)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "requeue",
			fmt.Sprintf("no %s clip recorded for owner %s", cat, ownerID), nil)
	}
	if current.AudioGenerated {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "requeue",
			fmt.Sprintf("%s clip for owner %s is already generated", cat, ownerID), nil)
	}
	task, _, err := s.store.EnqueueWordTask(ctx, queue.WordTaskInput{
		OwnerID:     ownerID,
		Word:        current.Word,
		Category:    cat,
		MaxAttempts: s.cfg.WordQueue.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}
