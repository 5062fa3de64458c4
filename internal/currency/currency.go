// Package currency converts USD spending figures into the display
// currency configured in settings. Rates are user-supplied; there is no
// network rate source.
package currency

import "fmt"

// Rates maps an ISO 4217 code to its value per 1 USD.
type Rates map[string]float64

// Convert translates amount between currencies through USD. The second
// return is false when a needed rate is missing or non-positive, in which
// case callers should fall back to comparing raw USD values.
func Convert(amount float64, from, to string, rates Rates) (float64, bool) {
	if from == to {
		return amount, true
	}

	usd := amount
	if from != "USD" {
		rate, ok := rates[from]
		if !ok || rate <= 0 {
			return 0, false
		}
		usd = amount / rate
	}

	if to == "USD" {
		return usd, true
	}
	rate, ok := rates[to]
	if !ok || rate <= 0 {
		return 0, false
	}
	return usd * rate, true
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// Format renders an amount for display: symbol-prefixed for common
// currencies, code-suffixed otherwise.
func Format(amount float64, code string) string {
	if sym, ok := symbols[code]; ok {
		return fmt.Sprintf("%s%.2f", sym, amount)
	}
	return fmt.Sprintf("%.2f %s", amount, code)
}
