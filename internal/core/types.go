package core

import "time"

// ConnectionStatus tracks where a provider sits in its connect/refresh
// lifecycle. Transitions are owned by the engine: NotConnected → Connecting
// on the first refresh, Connecting/Error → Connected on success, Connected →
// Error on a failed refresh, anything → NotConnected on disable or logout.
type ConnectionStatus string

const (
	StatusNotConnected ConnectionStatus = "NOT_CONNECTED"
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusError        ConnectionStatus = "ERROR"
)

// UsageLogEntry is one parsed usage record from a local log line. Entries
// are immutable once produced by the parser.
type UsageLogEntry struct {
	Timestamp           time.Time `json:"timestamp"`
	Model               string    `json:"model,omitempty"`
	InputTokens         int       `json:"input_tokens"`
	OutputTokens        int       `json:"output_tokens"`
	CacheCreationTokens int       `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int       `json:"cache_read_tokens,omitempty"`
	CostUSD             *float64  `json:"cost_usd,omitempty"`
}

// TotalTokens counts every token the entry accounts for, cache traffic
// included.
func (e UsageLogEntry) TotalTokens() int {
	return e.InputTokens + e.OutputTokens + e.CacheCreationTokens + e.CacheReadTokens
}

// UsageSummary is the per-source usage detail carried alongside spending:
// the rolling-window quota position plus a per-day token series.
type UsageSummary struct {
	WindowStart time.Time      `json:"window_start"`
	WindowUsed  float64        `json:"window_used"`
	WindowTotal float64        `json:"window_total"`
	TokensUsed  int            `json:"tokens_used"`
	TokenLimit  int            `json:"token_limit"`
	DailyTokens map[string]int `json:"daily_tokens,omitempty"` // "2025-01-15" → tokens
}

// ProviderSnapshot is one provider's slice of the aggregate. The engine
// replaces it wholesale each refresh cycle; on a failed refresh the previous
// SpendingUSD/Usage are carried forward so the display never regresses to
// "no data" on a transient blip.
type ProviderSnapshot struct {
	ProviderID  string           `json:"provider_id"`
	SpendingUSD *float64         `json:"spending_usd,omitempty"`
	Usage       *UsageSummary    `json:"usage,omitempty"`
	Status      ConnectionStatus `json:"status"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Message     string           `json:"message,omitempty"` // classified failure, empty when healthy
}

// AggregateSnapshot is the single externally visible output of the engine.
// Created empty at start, replaced wholesale on every successful or partial
// refresh, reset on logout/shutdown.
type AggregateSnapshot struct {
	TotalSpendingUSD float64                     `json:"total_spending_usd"`
	Providers        map[string]ProviderSnapshot `json:"providers"`
	NotifiedWarning  bool                        `json:"notified_warning"`
	NotifiedUpper    bool                        `json:"notified_upper"`
	Cycle            uint64                      `json:"cycle"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// ConnectedTotal sums spending over providers currently in StatusConnected.
// Errored or disconnected providers contribute nothing; the total is never
// poisoned by a missing value.
func (s AggregateSnapshot) ConnectedTotal() float64 {
	var total float64
	for _, p := range s.Providers {
		if p.Status == StatusConnected && p.SpendingUSD != nil {
			total += *p.SpendingUSD
		}
	}
	return total
}

// Clone deep-copies the snapshot so readers never alias engine-owned state.
func (s AggregateSnapshot) Clone() AggregateSnapshot {
	out := s
	out.Providers = make(map[string]ProviderSnapshot, len(s.Providers))
	for id, p := range s.Providers {
		out.Providers[id] = p.clone()
	}
	return out
}

func (p ProviderSnapshot) clone() ProviderSnapshot {
	out := p
	if p.SpendingUSD != nil {
		v := *p.SpendingUSD
		out.SpendingUSD = &v
	}
	if p.Usage != nil {
		u := *p.Usage
		if p.Usage.DailyTokens != nil {
			u.DailyTokens = make(map[string]int, len(p.Usage.DailyTokens))
			for day, tokens := range p.Usage.DailyTokens {
				u.DailyTokens[day] = tokens
			}
		}
		out.Usage = &u
	}
	return out
}
