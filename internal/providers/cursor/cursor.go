// Package cursor reports spending and quota usage for a Cursor account via
// the dashboard billing API.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spendmon/spendmon/internal/billing"
	"github.com/spendmon/spendmon/internal/core"
)

type Provider struct {
	now      func() time.Time
	discover func() (string, error)
}

func New() *Provider {
	return &Provider{
		now:      time.Now,
		discover: DiscoverSessionToken,
	}
}

func (p *Provider) ID() string { return "cursor" }

func (p *Provider) Describe() core.ProviderInfo {
	return core.ProviderInfo{
		Name:         "Cursor",
		Capabilities: []string{"spending", "invoice", "usage_window"},
		DocURL:       "https://www.cursor.com/",
	}
}

func (p *Provider) Fetch(ctx context.Context, cfg core.ProviderConfig) (core.ProviderSnapshot, error) {
	snap := core.ProviderSnapshot{ProviderID: cfg.ID}

	token := cfg.ResolveToken()
	if token == "" {
		discovered, err := p.discover()
		if err != nil {
			log.Printf("[cursor] session token discovery: %v", err)
		}
		token = discovered
	}
	if token == "" {
		snap.Status = core.StatusNotConnected
		snap.Message = "no session token (set CURSOR_SESSION_TOKEN or run: spendmon connect cursor)"
		return snap, nil
	}

	client := billing.NewClient(cfg.BaseURL)

	teams, err := client.FetchTeams(ctx, token)
	var team billing.Team
	switch {
	case errors.Is(err, billing.ErrNoTeam):
		team = billing.Team{ID: 0, Name: "Individual"}
	case errors.Is(err, billing.ErrAuth):
		snap.Status = core.StatusError
		snap.Message = "session token rejected; run: spendmon connect cursor"
		return snap, nil
	case err != nil:
		snap.Status = core.StatusError
		snap.Message = fmt.Sprintf("fetching teams: %v", err)
		return snap, nil
	default:
		team = teams[0]
	}

	var teamID *int
	if team.ID != 0 {
		id := team.ID
		teamID = &id
	}

	now := p.now()
	invoice, err := client.FetchMonthlyInvoice(ctx, token, int(now.Month()), now.Year(), teamID)
	if err != nil {
		snap.Status = core.StatusError
		snap.Message = fmt.Sprintf("fetching monthly invoice: %v", err)
		return snap, nil
	}

	spending := invoice.TotalUSD()
	snap.SpendingUSD = &spending
	snap.Status = core.StatusConnected
	snap.UpdatedAt = now

	// Spending alone is a usable result; the quota window is additive.
	usage, err := client.FetchUsageData(ctx, token)
	if err != nil {
		log.Printf("[cursor] usage fetch failed: %v", err)
		return snap, nil
	}
	if usage.FiveHour != nil {
		summary := &core.UsageSummary{
			WindowUsed:  usage.FiveHour.Utilization,
			WindowTotal: 100,
		}
		if resetsAt, err := time.Parse(time.RFC3339, usage.FiveHour.ResetsAt); err == nil {
			summary.WindowStart = resetsAt.Add(-5 * time.Hour)
		}
		snap.Usage = summary
	}

	return snap, nil
}
