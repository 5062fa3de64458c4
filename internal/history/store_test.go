package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spendmon/spendmon/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return store
}

func float64Ptr(v float64) *float64 { return &v }

func TestInit_CreatesSchema(t *testing.T) {
	store := newTestStore(t)

	var name string
	err := store.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='spending_history'`,
	).Scan(&name)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if name != "spending_history" {
		t.Errorf("table name = %q, want %q", name, "spending_history")
	}
}

func TestRecordSnapshot_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	recorded := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return recorded }

	snap := core.AggregateSnapshot{
		Cycle: 7,
		Providers: map[string]core.ProviderSnapshot{
			"cursor": {
				ProviderID:  "cursor",
				Status:      core.StatusConnected,
				SpendingUSD: float64Ptr(32.5),
				Usage:       &core.UsageSummary{TokensUsed: 1200},
			},
		},
	}
	if err := store.RecordSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	points, err := store.ProviderHistory(context.Background(), "cursor", recorded.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ProviderHistory() error = %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("ProviderHistory() returned %d points, want 1", len(points))
	}

	p := points[0]
	if !p.RecordedAt.Equal(recorded) {
		t.Errorf("RecordedAt = %v, want %v", p.RecordedAt, recorded)
	}
	if p.Cycle != 7 {
		t.Errorf("Cycle = %d, want 7", p.Cycle)
	}
	if p.Status != core.StatusConnected {
		t.Errorf("Status = %q, want %q", p.Status, core.StatusConnected)
	}
	if p.SpendingUSD == nil || *p.SpendingUSD != 32.5 {
		t.Errorf("SpendingUSD = %v, want 32.5", p.SpendingUSD)
	}
	if p.TokensUsed == nil || *p.TokensUsed != 1200 {
		t.Errorf("TokensUsed = %v, want 1200", p.TokensUsed)
	}
}

func TestRecordSnapshot_NullableFields(t *testing.T) {
	store := newTestStore(t)

	snap := core.AggregateSnapshot{
		Cycle: 1,
		Providers: map[string]core.ProviderSnapshot{
			"claude-code": {
				ProviderID: "claude-code",
				Status:     core.StatusError,
				Message:    "log directory not accessible",
			},
		},
	}
	if err := store.RecordSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	points, err := store.ProviderHistory(context.Background(), "claude-code", time.Time{})
	if err != nil {
		t.Fatalf("ProviderHistory() error = %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("ProviderHistory() returned %d points, want 1", len(points))
	}
	if points[0].SpendingUSD != nil {
		t.Errorf("SpendingUSD = %v, want nil", *points[0].SpendingUSD)
	}
	if points[0].TokensUsed != nil {
		t.Errorf("TokensUsed = %v, want nil", *points[0].TokensUsed)
	}
	if points[0].Message != "log directory not accessible" {
		t.Errorf("Message = %q, want error message preserved", points[0].Message)
	}
}

func TestProviderHistory_FiltersBySince(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i, spending := range []float64{10, 20, 30} {
		at := base.Add(time.Duration(i) * time.Hour)
		store.now = func() time.Time { return at }
		snap := core.AggregateSnapshot{
			Cycle: uint64(i + 1),
			Providers: map[string]core.ProviderSnapshot{
				"cursor": {
					ProviderID:  "cursor",
					Status:      core.StatusConnected,
					SpendingUSD: float64Ptr(spending),
				},
			},
		}
		if err := store.RecordSnapshot(context.Background(), snap); err != nil {
			t.Fatalf("RecordSnapshot() error = %v", err)
		}
	}

	points, err := store.ProviderHistory(context.Background(), "cursor", base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ProviderHistory() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("ProviderHistory() returned %d points, want 2", len(points))
	}
	if *points[0].SpendingUSD != 20 || *points[1].SpendingUSD != 30 {
		t.Errorf("points = [%v, %v], want [20, 30] oldest first",
			*points[0].SpendingUSD, *points[1].SpendingUSD)
	}
}

func TestProviderHistory_ScopedToProvider(t *testing.T) {
	store := newTestStore(t)

	snap := core.AggregateSnapshot{
		Cycle: 1,
		Providers: map[string]core.ProviderSnapshot{
			"cursor":      {ProviderID: "cursor", Status: core.StatusConnected, SpendingUSD: float64Ptr(5)},
			"claude-code": {ProviderID: "claude-code", Status: core.StatusConnected, SpendingUSD: float64Ptr(9)},
		},
	}
	if err := store.RecordSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	points, err := store.ProviderHistory(context.Background(), "cursor", time.Time{})
	if err != nil {
		t.Fatalf("ProviderHistory() error = %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("ProviderHistory() returned %d points, want 1", len(points))
	}
	if points[0].ProviderID != "cursor" {
		t.Errorf("ProviderID = %q, want %q", points[0].ProviderID, "cursor")
	}
}

func TestPrune_DeletesOldRows(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		at := base.AddDate(0, 0, -10*i) // base, -10d, -20d
		store.now = func() time.Time { return at }
		snap := core.AggregateSnapshot{
			Cycle: uint64(i + 1),
			Providers: map[string]core.ProviderSnapshot{
				"cursor": {ProviderID: "cursor", Status: core.StatusConnected, SpendingUSD: float64Ptr(float64(i))},
			},
		}
		if err := store.RecordSnapshot(context.Background(), snap); err != nil {
			t.Fatalf("RecordSnapshot() error = %v", err)
		}
	}

	store.now = func() time.Time { return base }
	if err := store.Prune(context.Background(), 15*24*time.Hour); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	points, err := store.ProviderHistory(context.Background(), "cursor", time.Time{})
	if err != nil {
		t.Fatalf("ProviderHistory() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("after prune got %d points, want 2 (the -20d row dropped)", len(points))
	}
}

func TestOpen_CreatesDirAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	snap := core.AggregateSnapshot{
		Cycle: 1,
		Providers: map[string]core.ProviderSnapshot{
			"cursor": {ProviderID: "cursor", Status: core.StatusConnected},
		},
	}
	if err := store.RecordSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("RecordSnapshot() on opened store error = %v", err)
	}
}
