// Package claudecode derives spending and quota usage from Claude Code's
// local session logs. There is no network access: everything comes out of
// the JSONL transcripts under the log directory.
package claudecode

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/spendmon/spendmon/internal/config"
	"github.com/spendmon/spendmon/internal/core"
	"github.com/spendmon/spendmon/internal/logmine"
)

type Provider struct {
	quota logmine.WindowQuota

	mu     sync.Mutex
	miners map[string]*logmine.Miner // log dir → miner, kept so its cache survives refreshes

	now func() time.Time
}

func New(quota logmine.WindowQuota) *Provider {
	return &Provider{
		quota:  quota,
		miners: make(map[string]*logmine.Miner),
		now:    time.Now,
	}
}

func (p *Provider) ID() string { return "claude-code" }

func (p *Provider) Describe() core.ProviderInfo {
	return core.ProviderInfo{
		Name:         "Claude Code",
		Capabilities: []string{"spending", "usage_window", "local_logs"},
		DocURL:       "https://docs.anthropic.com/en/docs/claude-code",
	}
}

func (p *Provider) Fetch(ctx context.Context, cfg core.ProviderConfig) (core.ProviderSnapshot, error) {
	snap := core.ProviderSnapshot{ProviderID: cfg.ID}

	dir := cfg.LogDir
	if dir == "" {
		dir = config.DefaultLogDir()
	}
	if dir == "" {
		snap.Status = core.StatusNotConnected
		snap.Message = "no log directory configured and home directory unknown"
		return snap, nil
	}

	miner := p.minerFor(dir)

	daily, stats, err := miner.DailyUsage(ctx)
	if err != nil {
		return core.ProviderSnapshot{}, fmt.Errorf("mining %s: %w", dir, err)
	}
	if stats.AccessError {
		snap.Status = core.StatusNotConnected
		snap.Message = fmt.Sprintf("log directory not accessible: %s", dir)
		return snap, nil
	}

	now := p.now()
	window, err := miner.CurrentWindowUsage(ctx, now, p.quota)
	if err != nil {
		return core.ProviderSnapshot{}, fmt.Errorf("window usage for %s: %w", dir, err)
	}

	spending := monthToDateCost(daily, now)
	snap.SpendingUSD = &spending
	snap.Usage = &core.UsageSummary{
		WindowStart: window.WindowStart,
		WindowUsed:  window.Used,
		WindowTotal: window.Total,
		TokensUsed:  window.TokensUsed,
		TokenLimit:  window.EstimatedTokenLimit,
		DailyTokens: dailyTokenTotals(daily),
	}
	snap.Status = core.StatusConnected
	snap.UpdatedAt = now

	if stats.FileErrors > 0 || stats.LinesSkipped > 0 {
		log.Printf("[claude-code] mined %d files (%d unreadable), %d lines skipped",
			stats.FilesScanned, stats.FileErrors, stats.LinesSkipped)
	}

	return snap, nil
}

func (p *Provider) minerFor(dir string) *logmine.Miner {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.miners[dir]
	if !ok {
		m = logmine.NewMiner(dir)
		p.miners[dir] = m
	}
	return m
}

func dailyTokenTotals(daily logmine.DailyUsage) map[string]int {
	totals := make(map[string]int, len(daily))
	for day, entries := range daily {
		totals[day] = lo.SumBy(entries, func(e core.UsageLogEntry) int { return e.TotalTokens() })
	}
	return totals
}

// monthToDateCost sums per-entry recorded costs for the current calendar
// month. Entries without a cost figure contribute nothing; most sessions
// on subscription plans record no cost at all, which correctly shows as
// zero marginal spend.
func monthToDateCost(daily logmine.DailyUsage, now time.Time) float64 {
	prefix := now.In(time.Local).Format("2006-01")

	var total float64
	for day, entries := range daily {
		if !strings.HasPrefix(day, prefix) {
			continue
		}
		for _, e := range entries {
			if e.CostUSD != nil {
				total += *e.CostUSD
			}
		}
	}
	return total
}
