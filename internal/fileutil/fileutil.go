package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TempSuffix marks an in-progress write. Files carrying it are never complete.
const TempSuffix = ".tmp"

// ErrEmpty is returned when a stream produced no bytes.
var ErrEmpty = errors.New("empty content")

// CreateTemp opens a uniquely named in-progress file next to dst, so
// concurrent writers of the same destination never share a temp file.
func CreateTemp(dst string) (*os.File, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(dst)+".*"+TempSuffix)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}
	return f, nil
}

// IsNonEmptyFile reports whether path is a regular file with at least one byte.
func IsNonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// WriteStreamAtomic streams r into a temp file beside dst, verifies a non-zero
// size, then renames it over dst. On any failure the temp file is removed and
// dst is left untouched. A zero-byte stream returns ErrEmpty.
func WriteStreamAtomic(dst string, r io.Reader) (int64, error) {
	out, err := CreateTemp(dst)
	if err != nil {
		return 0, err
	}
	tmp := out.Name()

	written, copyErr := io.Copy(out, r)
	if copyErr == nil {
		copyErr = out.Sync()
	}
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmp)
		return written, copyErr
	}

	info, err := os.Stat(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return written, fmt.Errorf("stat temp file: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return 0, ErrEmpty
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return written, fmt.Errorf("rename temp file: %w", err)
	}
	return written, nil
}

// WriteFileAtomic writes data to dst through a temp file and rename.
// Empty data is allowed.
func WriteFileAtomic(dst string, data []byte, mode os.FileMode) error {
	out, err := CreateTemp(dst)
	if err != nil {
		return err
	}
	tmp := out.Name()
	_, err = out.Write(data)
	if err == nil {
		err = out.Chmod(mode)
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
