package claudecode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spendmon/spendmon/internal/core"
	"github.com/spendmon/spendmon/internal/logmine"
)

const costedLine = `{"type":"assistant","timestamp":"%s","costUSD":%g,"message":{"model":"opus-4","usage":{"input_tokens":4,"output_tokens":2}}}` + "\n"

func appendUsageLines(b *strings.Builder, ts time.Time, cost float64, lines int) {
	for i := 0; i < lines; i++ {
		fmt.Fprintf(b, costedLine, ts.Format(time.RFC3339), cost)
	}
}

func newTestProvider(ref time.Time) *Provider {
	p := New(logmine.WindowQuota{Messages: 45, Tokens: 19000})
	p.now = func() time.Time { return ref }
	return p
}

func TestFetch_MinesSpendingAndWindow(t *testing.T) {
	dir := t.TempDir()
	// Mid-month local noon in the recent past: calendar boundaries stay
	// stable and freshly written files pass the window's mtime pre-filter.
	now := time.Now()
	ref := time.Date(now.Year(), now.Month(), 15, 12, 0, 0, 0, time.Local).AddDate(0, -1, 0)

	var b strings.Builder
	appendUsageLines(&b, ref.Add(-time.Hour), 0.5, 2)         // in window, current month
	appendUsageLines(&b, ref.Add(-72*time.Hour), 0.25, 1)     // out of window, current month
	appendUsageLines(&b, ref.AddDate(0, 0, -20), 1.0, 1)      // previous month
	if err := os.WriteFile(filepath.Join(dir, "session-abc.jsonl"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestProvider(ref)
	snap, err := p.Fetch(context.Background(), core.ProviderConfig{ID: "claude-code", Provider: "claude-code", LogDir: dir})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if snap.Status != core.StatusConnected {
		t.Fatalf("status = %s, want %s (message: %s)", snap.Status, core.StatusConnected, snap.Message)
	}
	if snap.SpendingUSD == nil || *snap.SpendingUSD != 1.25 {
		t.Errorf("month-to-date spending = %v, want 1.25", snap.SpendingUSD)
	}
	if snap.Usage == nil {
		t.Fatal("usage summary missing")
	}
	if snap.Usage.WindowUsed != 2 {
		t.Errorf("window used = %f, want 2", snap.Usage.WindowUsed)
	}
	if snap.Usage.WindowTotal != 45 || snap.Usage.TokenLimit != 19000 {
		t.Errorf("window totals = %f/%d, want 45/19000 from the account tier", snap.Usage.WindowTotal, snap.Usage.TokenLimit)
	}
	if snap.Usage.TokensUsed != 12 {
		t.Errorf("window tokens = %d, want 12", snap.Usage.TokensUsed)
	}

	day := ref.Add(-time.Hour).In(time.Local).Format("2006-01-02")
	if got := snap.Usage.DailyTokens[day]; got != 12 {
		t.Errorf("daily tokens for %s = %d, want 12", day, got)
	}
}

func TestFetch_MissingLogDirIsNotConnected(t *testing.T) {
	p := newTestProvider(time.Now())

	snap, err := p.Fetch(context.Background(), core.ProviderConfig{
		ID: "claude-code", Provider: "claude-code",
		LogDir: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if snap.Status != core.StatusNotConnected {
		t.Errorf("status = %s, want %s", snap.Status, core.StatusNotConnected)
	}
	if !strings.Contains(snap.Message, "not accessible") {
		t.Errorf("message = %q, want an accessibility explanation", snap.Message)
	}
}

func TestFetch_EmptyLogDirIsConnectedWithZeroes(t *testing.T) {
	p := newTestProvider(time.Now())

	snap, err := p.Fetch(context.Background(), core.ProviderConfig{
		ID: "claude-code", Provider: "claude-code", LogDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if snap.Status != core.StatusConnected {
		t.Fatalf("status = %s, want %s", snap.Status, core.StatusConnected)
	}
	if snap.SpendingUSD == nil || *snap.SpendingUSD != 0 {
		t.Errorf("spending = %v, want 0", snap.SpendingUSD)
	}
	if snap.Usage.WindowUsed != 0 || snap.Usage.TokensUsed != 0 {
		t.Errorf("window = %f/%d, want empty", snap.Usage.WindowUsed, snap.Usage.TokensUsed)
	}
}

func TestFetch_ReusesMinerPerDirectory(t *testing.T) {
	p := newTestProvider(time.Now())
	dir := t.TempDir()

	first := p.minerFor(dir)
	second := p.minerFor(dir)
	other := p.minerFor(t.TempDir())

	if first != second {
		t.Error("same directory should reuse the miner (and its cache)")
	}
	if first == other {
		t.Error("different directories must not share a miner")
	}
}
