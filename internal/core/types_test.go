package core

import (
	"testing"
	"time"
)

func float64Ptr(v float64) *float64 { return &v }

func TestUsageLogEntryTotalTokens(t *testing.T) {
	tests := []struct {
		name string
		e    UsageLogEntry
		want int
	}{
		{
			name: "input and output only",
			e:    UsageLogEntry{InputTokens: 100, OutputTokens: 50},
			want: 150,
		},
		{
			name: "cache traffic counts",
			e:    UsageLogEntry{InputTokens: 10, OutputTokens: 5, CacheCreationTokens: 3, CacheReadTokens: 2},
			want: 20,
		},
		{
			name: "empty entry",
			e:    UsageLogEntry{},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.e.TotalTokens()
			if got != tt.want {
				t.Errorf("TotalTokens() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregateSnapshotConnectedTotal(t *testing.T) {
	snap := AggregateSnapshot{
		Providers: map[string]ProviderSnapshot{
			"cursor":      {Status: StatusConnected, SpendingUSD: float64Ptr(12.5)},
			"cursor-work": {Status: StatusError, SpendingUSD: float64Ptr(99)}, // stale, excluded
			"claude-code": {Status: StatusConnected},                          // connected, no spending figure
			"gemini":      {Status: StatusNotConnected},
		},
	}

	got := snap.ConnectedTotal()
	if got != 12.5 {
		t.Errorf("ConnectedTotal() = %v, want 12.5", got)
	}
}

func TestAggregateSnapshotClone(t *testing.T) {
	snap := AggregateSnapshot{
		TotalSpendingUSD: 12.5,
		Providers: map[string]ProviderSnapshot{
			"cursor": {
				Status:      StatusConnected,
				SpendingUSD: float64Ptr(12.5),
				Usage: &UsageSummary{
					DailyTokens: map[string]int{"2025-01-15": 1200},
				},
			},
		},
		UpdatedAt: time.Now(),
	}

	clone := snap.Clone()

	*clone.Providers["cursor"].SpendingUSD = 0
	clone.Providers["cursor"].Usage.DailyTokens["2025-01-15"] = 0

	if *snap.Providers["cursor"].SpendingUSD != 12.5 {
		t.Error("clone shares the SpendingUSD pointer with the original")
	}
	if snap.Providers["cursor"].Usage.DailyTokens["2025-01-15"] != 1200 {
		t.Error("clone shares the DailyTokens map with the original")
	}
}
