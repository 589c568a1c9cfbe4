package session

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"narrator/internal/fileutil"
)

const segmentPrefix = "segment_"

// SegmentFileName returns the file name for a segment index, for example
// segment_007.mp3. ext must include the leading dot.
func SegmentFileName(index int, ext string) string {
	return fmt.Sprintf("%s%03d%s", segmentPrefix, index, ext)
}

// maxIndexDigits bounds the digit run so the index always fits an int.
const maxIndexDigits = 9

// ParseSegmentFileName extracts the index from a completed segment file name
// with extension ext. Temp files, other extensions, and indices that are not
// a plain run of ASCII digits return false.
func ParseSegmentFileName(name, ext string) (int, bool) {
	if ext == "" || strings.HasSuffix(name, fileutil.TempSuffix) {
		return 0, false
	}
	digits, ok := strings.CutPrefix(name, segmentPrefix)
	if !ok {
		return 0, false
	}
	digits, ok = strings.CutSuffix(digits, ext)
	if !ok || digits == "" || len(digits) > maxIndexDigits {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return index, true
}

// Layout maps session identifiers onto the session root directory.
type Layout struct {
	Root string
	Ext  string
}

// Dir returns the segment directory of a session.
func (l Layout) Dir(sessionID string) string {
	return filepath.Join(l.Root, sessionID)
}

// SegmentPath returns the final path of one segment.
func (l Layout) SegmentPath(sessionID string, index int) string {
	return filepath.Join(l.Dir(sessionID), SegmentFileName(index, l.Ext))
}
