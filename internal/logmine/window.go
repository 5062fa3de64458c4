package logmine

import "time"

// WindowDuration is the rolling quota window applied by the billing model.
const WindowDuration = 5 * time.Hour

// WindowQuota carries the account-tier totals the window is measured
// against. Totals come from configuration, never from the logs themselves.
type WindowQuota struct {
	Messages float64
	Tokens   int
}

// FiveHourWindow is the quota consumed in the trailing window ending at the
// reference instant. Computed on demand, never persisted.
type FiveHourWindow struct {
	WindowStart         time.Time `json:"window_start"`
	Used                float64   `json:"used"`
	Total               float64   `json:"total"`
	TokensUsed          int       `json:"tokens_used"`
	EstimatedTokenLimit int       `json:"estimated_token_limit"`
}

// ComputeWindow evaluates the rolling five-hour quota at ref. Entries with
// timestamps in [ref-5h, ref] count, inclusive at both bounds; everything
// else is ignored. ref is a parameter rather than time.Now so the window is
// evaluable at arbitrary instants.
func ComputeWindow(daily DailyUsage, ref time.Time, quota WindowQuota) FiveHourWindow {
	start := ref.Add(-WindowDuration)
	w := FiveHourWindow{
		WindowStart:         start,
		Total:               quota.Messages,
		EstimatedTokenLimit: quota.Tokens,
	}
	for _, entries := range daily {
		for _, e := range entries {
			if e.Timestamp.Before(start) || e.Timestamp.After(ref) {
				continue
			}
			w.Used++
			w.TokensUsed += e.TotalTokens()
		}
	}
	return w
}
