package logmine

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const usageLine = `{"type":"assistant","timestamp":"%s","message":{"model":"opus-4","usage":{"input_tokens":4,"output_tokens":2}}}` + "\n"

func writeUsageFile(t *testing.T, dir, name string, lines int, ts time.Time) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < lines; i++ {
		b.WriteString(strings.Replace(usageLine, "%s", ts.Format(time.RFC3339), 1))
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMiner_AggregatesDailyTotals(t *testing.T) {
	dir := t.TempDir()
	ts := time.Now().Add(-time.Hour)
	writeUsageFile(t, dir, "session.jsonl", 3, ts)

	m := NewMiner(dir)
	daily, stats, err := m.DailyUsage(context.Background())
	if err != nil {
		t.Fatalf("DailyUsage failed: %v", err)
	}
	if stats.LinesParsed != 3 {
		t.Errorf("Expected 3 parsed lines, got %d", stats.LinesParsed)
	}

	day := ts.In(time.Local).Format("2006-01-02")
	entries := daily[day]
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries for %s, got %d", day, len(entries))
	}
	var in, out int
	for _, e := range entries {
		in += e.InputTokens
		out += e.OutputTokens
	}
	if in != 12 || out != 6 {
		t.Errorf("Expected daily aggregate 12/6, got %d/%d", in, out)
	}
}

func TestMiner_SkipsTinyFiles(t *testing.T) {
	dir := t.TempDir()
	// 50 bytes of plausible-looking content: below the noise threshold.
	small := []byte(`{"input_tokens": 4, "output_tokens": 2}` + "\n")
	if len(small) >= minLogFileSize {
		t.Fatalf("fixture too large: %d bytes", len(small))
	}
	if err := os.WriteFile(filepath.Join(dir, "tiny.jsonl"), small, 0644); err != nil {
		t.Fatal(err)
	}

	m := NewMiner(dir)
	daily, stats, err := m.DailyUsage(context.Background())
	if err != nil {
		t.Fatalf("DailyUsage failed: %v", err)
	}
	if len(daily) != 0 {
		t.Errorf("Expected empty result, got %v", daily)
	}
	if stats.FilesSkipped != 1 {
		t.Errorf("Expected 1 skipped file, got %d", stats.FilesSkipped)
	}
}

func TestMiner_CacheHitOnUnchangedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeUsageFile(t, dir, "session.jsonl", 3, time.Now().Add(-time.Hour))

	m := NewMiner(dir)
	first, stats1, err := m.DailyUsage(context.Background())
	if err != nil {
		t.Fatalf("first DailyUsage failed: %v", err)
	}
	if stats1.CacheHit {
		t.Error("Expected first call to miss the cache")
	}

	second, stats2, err := m.DailyUsage(context.Background())
	if err != nil {
		t.Fatalf("second DailyUsage failed: %v", err)
	}
	if !stats2.CacheHit {
		t.Error("Expected second call to hit the cache")
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical results from cached call")
	}
}

func TestMiner_RecomputesWhenFileChanges(t *testing.T) {
	dir := t.TempDir()
	ts := time.Now().Add(-time.Hour)
	path := writeUsageFile(t, dir, "session.jsonl", 3, ts)

	m := NewMiner(dir)
	if _, _, err := m.DailyUsage(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same size, different mtime: the fingerprint must move even within
	// the TTL.
	if err := os.Chtimes(path, ts.Add(time.Minute), ts.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	_, stats, err := m.DailyUsage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.CacheHit {
		t.Error("Expected recompute after file touch, got cache hit")
	}
}

func TestMiner_CountsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat(`{"timestamp":"2026-02-05T10:00:00Z","input_tokens":4,"output_tokens":2}`+"\n", 2) +
		"not json at all but mentions tokens\n" +
		`{"type":"summary","input_tokens":1}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "mixed.jsonl"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewMiner(dir)
	_, stats, err := m.DailyUsage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.LinesParsed != 2 {
		t.Errorf("Expected 2 parsed lines, got %d", stats.LinesParsed)
	}
	if stats.LinesSkipped != 2 {
		t.Errorf("Expected 2 skipped lines, got %d", stats.LinesSkipped)
	}
}

func TestMiner_MissingDirectoryIsRecoverable(t *testing.T) {
	m := NewMiner(filepath.Join(t.TempDir(), "revoked"))
	daily, stats, err := m.DailyUsage(context.Background())
	if err != nil {
		t.Fatalf("Expected recoverable result, got error: %v", err)
	}
	if !stats.AccessError {
		t.Error("Expected AccessError to be set")
	}
	if len(daily) != 0 {
		t.Errorf("Expected empty result, got %v", daily)
	}
}

func TestMiner_CurrentWindowUsageBypassesCache(t *testing.T) {
	dir := t.TempDir()
	ts := time.Now().Add(-30 * time.Minute)
	writeUsageFile(t, dir, "session.jsonl", 2, ts)

	m := NewMiner(dir)
	// Prime the cache with the current directory state.
	if _, _, err := m.DailyUsage(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Append more usage; the cached payload is now stale but still valid
	// by TTL. The live window must see the new lines anyway.
	writeUsageFile(t, dir, "session2.jsonl", 4, time.Now().Add(-10*time.Minute))

	w, err := m.CurrentWindowUsage(context.Background(), time.Now(), WindowQuota{Messages: 45})
	if err != nil {
		t.Fatalf("CurrentWindowUsage failed: %v", err)
	}
	if w.Used != 6 {
		t.Errorf("Expected 6 entries in live window, got %v", w.Used)
	}
	if w.TokensUsed != 36 {
		t.Errorf("Expected 36 tokens in live window, got %d", w.TokensUsed)
	}
}

func TestMiner_WholeFileFailureDegradesToPartialResult(t *testing.T) {
	dir := t.TempDir()
	ts := time.Now().Add(-time.Hour)
	good := writeUsageFile(t, dir, "good.jsonl", 3, ts)

	// A file that vanishes between scan and open (rotation, revoked grant)
	// is skipped; the rest of the scan still contributes.
	files := []LogFile{
		{Path: good, Size: 400, ModTime: ts},
		{Path: filepath.Join(dir, "vanished.jsonl"), Size: 400, ModTime: ts},
	}

	m := NewMiner(dir)
	entries, stats := m.mineFiles(context.Background(), files)
	if len(entries) != 3 {
		t.Errorf("Expected 3 entries from the readable file, got %d", len(entries))
	}
	if stats.FileErrors != 1 {
		t.Errorf("Expected 1 file error, got %d", stats.FileErrors)
	}
	if stats.FilesScanned != 1 {
		t.Errorf("Expected 1 scanned file, got %d", stats.FilesScanned)
	}
}
