package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Progress is the state of a session as recovered from its directory.
type Progress struct {
	Completed      []int   `json:"completed"`
	Missing        []int   `json:"missing"`
	Total          int     `json:"totalSegments"`
	CompletionRate float64 `json:"completionRate"`
	DirExists      bool    `json:"dirExists"`
}

// Done reports whether every expected segment is present.
func (p Progress) Done() bool {
	return p.Total > 0 && len(p.Missing) == 0
}

// MaxInferredSegments caps the segment count inferred from files on disk, so a
// stray high-numbered file cannot blow up the missing list.
const MaxInferredSegments = 1000

// Scan inspects dir and reports which of the expected segments with extension
// ext are complete. An expectedCount <= 0 infers the count as the highest
// completed index + 1, capped at MaxInferredSegments. A missing directory
// reports every expected index as missing.
func Scan(dir, ext string, expectedCount int) (Progress, error) {
	present, err := completedIndices(dir, ext)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Progress{}, fmt.Errorf("scan %s: %w", dir, err)
		}
		return build(nil, expectedCount, false), nil
	}
	return build(present, expectedCount, true), nil
}

func build(present map[int]struct{}, expectedCount int, exists bool) Progress {
	total := expectedCount
	if total <= 0 {
		total = 0
		for idx := range present {
			if idx+1 > total {
				total = idx + 1
			}
		}
		total = min(total, MaxInferredSegments)
	}
	progress := Progress{
		Completed: make([]int, 0, min(len(present), total)),
		Missing:   make([]int, 0),
		Total:     total,
		DirExists: exists,
	}
	for i := 0; i < total; i++ {
		if _, ok := present[i]; ok {
			progress.Completed = append(progress.Completed, i)
		} else {
			progress.Missing = append(progress.Missing, i)
		}
	}
	if total > 0 {
		progress.CompletionRate = float64(len(progress.Completed)) / float64(total)
	}
	return progress
}

func completedIndices(dir, ext string) (map[int]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	present := make(map[int]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		index, ok := ParseSegmentFileName(entry.Name(), ext)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}
		present[index] = struct{}{}
	}
	return present, nil
}

// Unfinished describes a session directory holding at least one completed segment.
type Unfinished struct {
	SessionID  string    `json:"sessionId"`
	Dir        string    `json:"dir"`
	Progress   Progress  `json:"progress"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// FindUnfinished lists session directories under root that contain completed
// segments with extension ext, newest first. Counts are inferred from the
// files present. When keep is non-nil only session IDs it accepts are
// considered.
func FindUnfinished(root, ext string, keep func(sessionID string) bool) ([]Unfinished, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []Unfinished
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if keep != nil && !keep(id) {
			continue
		}
		dir := filepath.Join(root, id)
		progress, err := Scan(dir, ext, 0)
		if err != nil || len(progress.Completed) == 0 {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Unfinished{SessionID: id, Dir: dir, Progress: progress, ModifiedAt: info.ModTime()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ModifiedAt.After(out[j].ModifiedAt)
	})
	return out, nil
}
