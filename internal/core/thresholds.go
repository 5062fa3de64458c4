package core

import "github.com/spendmon/spendmon/internal/currency"

// ThresholdPolicy evaluates spending limits with hysteresis. Limits are
// expressed in CurrencyCode; totals arrive in USD and are converted through
// Rates. When the conversion rate is missing the raw USD total is compared
// against the configured limit rather than suppressing alerts entirely.
type ThresholdPolicy struct {
	WarningLimit float64
	UpperLimit   float64
	CurrencyCode string
	Rates        currency.Rates
}

// ThresholdResult reports which limits fired on this evaluation and the
// armed flags to carry into the next one. A limit fires only on the
// transition from below to at-or-above; the flag re-arms when the total
// falls back below the limit, so a total oscillating around a limit
// notifies once per crossing, not once per refresh.
type ThresholdResult struct {
	DisplayTotal    float64
	FireWarning     bool
	FireUpper       bool
	NotifiedWarning bool
	NotifiedUpper   bool
}

// Evaluate applies the policy to a USD total given the previous armed flags.
// A limit of zero or below disables that limit.
func (p ThresholdPolicy) Evaluate(totalUSD float64, notifiedWarning, notifiedUpper bool) ThresholdResult {
	total := totalUSD
	if p.CurrencyCode != "" && p.CurrencyCode != "USD" {
		if converted, ok := currency.Convert(totalUSD, "USD", p.CurrencyCode, p.Rates); ok {
			total = converted
		}
	}

	res := ThresholdResult{
		DisplayTotal:    total,
		NotifiedWarning: notifiedWarning,
		NotifiedUpper:   notifiedUpper,
	}

	if p.WarningLimit > 0 {
		switch {
		case total >= p.WarningLimit && !notifiedWarning:
			res.FireWarning = true
			res.NotifiedWarning = true
		case total < p.WarningLimit:
			res.NotifiedWarning = false
		}
	}

	if p.UpperLimit > 0 {
		switch {
		case total >= p.UpperLimit && !notifiedUpper:
			res.FireUpper = true
			res.NotifiedUpper = true
		case total < p.UpperLimit:
			res.NotifiedUpper = false
		}
	}

	return res
}
