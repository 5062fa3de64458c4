package logmine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFileAt(t *testing.T, path string, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting mtime on %s: %v", path, err)
	}
}

func TestScanner_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	writeFileAt(t, filepath.Join(dir, "old.jsonl"), "a", now.Add(-48*time.Hour))
	writeFileAt(t, filepath.Join(dir, "new.jsonl"), "b", now.Add(-time.Hour))
	writeFileAt(t, filepath.Join(dir, "mid.jsonl"), "c", now.Add(-24*time.Hour))

	s := NewScanner()
	s.now = func() time.Time { return now }

	files := s.ListFiles(dir)
	if len(files) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(files))
	}
	want := []string{"new.jsonl", "mid.jsonl", "old.jsonl"}
	for i, w := range want {
		if filepath.Base(files[i].Path) != w {
			t.Errorf("Position %d: expected %s, got %s", i, w, filepath.Base(files[i].Path))
		}
	}
}

func TestScanner_RetentionByModTime(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	writeFileAt(t, filepath.Join(dir, "fresh.jsonl"), "a", now.Add(-29*24*time.Hour))
	writeFileAt(t, filepath.Join(dir, "stale.jsonl"), "b", now.Add(-31*24*time.Hour))

	s := NewScanner()
	s.now = func() time.Time { return now }

	files := s.ListFiles(dir)
	if len(files) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(files))
	}
	if filepath.Base(files[0].Path) != "fresh.jsonl" {
		t.Errorf("Expected fresh.jsonl, got %s", filepath.Base(files[0].Path))
	}
}

func TestScanner_RetentionByNameDate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	// Fresh mtime but the name says the content is ancient.
	writeFileAt(t, filepath.Join(dir, "usage-2020-01-01.jsonl"), "a", now.Add(-time.Hour))
	writeFileAt(t, filepath.Join(dir, "usage-2026-02-04.jsonl"), "b", now.Add(-time.Hour))

	s := NewScanner()
	s.now = func() time.Time { return now }

	files := s.ListFiles(dir)
	if len(files) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(files))
	}
	if filepath.Base(files[0].Path) != "usage-2026-02-04.jsonl" {
		t.Errorf("Expected usage-2026-02-04.jsonl, got %s", filepath.Base(files[0].Path))
	}
}

func TestScanner_UnreadableDirReturnsEmpty(t *testing.T) {
	s := NewScanner()
	files := s.ListFiles(filepath.Join(t.TempDir(), "does-not-exist"))
	if len(files) != 0 {
		t.Errorf("Expected empty list for missing directory, got %d files", len(files))
	}
}

func TestScanner_SkipsHiddenFilesAndRecursesSubdirs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	sub := filepath.Join(dir, "project-a")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeFileAt(t, filepath.Join(sub, "session.jsonl"), "a", now.Add(-time.Hour))
	writeFileAt(t, filepath.Join(dir, ".DS_Store"), "junk", now.Add(-time.Hour))

	s := NewScanner()
	s.now = func() time.Time { return now }

	files := s.ListFiles(dir)
	if len(files) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(files))
	}
	if filepath.Base(files[0].Path) != "session.jsonl" {
		t.Errorf("Expected nested session.jsonl, got %s", files[0].Path)
	}
}
