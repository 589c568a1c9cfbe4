package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
)

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(dir, "*"+TempSuffix))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) > 0 {
		t.Fatalf("expected no temp files, found %v", leftovers)
	}
}

func TestWriteStreamAtomic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nested", "segment_000.mp3")
	n, err := WriteStreamAtomic(dst, strings.NewReader("audio"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes written, got %d", n)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "audio" {
		t.Fatalf("content mismatch: %q", got)
	}
	assertNoTempFiles(t, filepath.Dir(dst))
}

func TestWriteStreamAtomicRejectsEmpty(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "segment_001.mp3")
	if _, err := WriteStreamAtomic(dst, strings.NewReader("")); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("expected no final file, stat err=%v", err)
	}
	assertNoTempFiles(t, filepath.Dir(dst))
}

func TestWriteStreamAtomicLeavesExistingOnFailure(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "segment_002.mp3")
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if _, err := WriteStreamAtomic(dst, iotest.ErrReader(boom)); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Fatalf("expected original content preserved, got %q", got)
	}
}

func TestWriteFileAtomicAndIsNonEmpty(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	full := filepath.Join(dir, "full.txt")
	if err := WriteFileAtomic(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(full, []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if IsNonEmptyFile(empty) {
		t.Fatal("empty file reported non-empty")
	}
	if !IsNonEmptyFile(full) {
		t.Fatal("full file reported empty")
	}
	if IsNonEmptyFile(dir) {
		t.Fatal("directory reported as file")
	}
	if IsNonEmptyFile(filepath.Join(dir, "missing")) {
		t.Fatal("missing file reported non-empty")
	}
}

func TestWriteStreamAtomicConcurrentWritersOfSameDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "segment_000.mp3")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := strings.Repeat(fmt.Sprintf("w%d", i), 4096)
			if _, err := WriteStreamAtomic(dst, strings.NewReader(payload)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent write failed: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) < 2 || string(got) != strings.Repeat(string(got[:2]), 4096) {
		t.Fatalf("expected one complete payload, got %d bytes", len(got))
	}
	assertNoTempFiles(t, dir)
}
