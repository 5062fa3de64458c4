package billing

import "github.com/samber/lo"

// Team is one billing team the credential belongs to. Accounts without team
// membership get a synthesized individual team (see Client.FetchTeams).
type Team struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type teamsResponse struct {
	Teams []Team `json:"teams"`
}

type UserInfo struct {
	ID    string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type InvoiceItem struct {
	Description string  `json:"description"`
	Cents       float64 `json:"cents"`
}

// Invoice is one month's itemized spending. Amounts arrive in cents.
type Invoice struct {
	Items []InvoiceItem `json:"items"`
}

func (inv Invoice) TotalUSD() float64 {
	return lo.SumBy(inv.Items, func(it InvoiceItem) float64 { return it.Cents }) / 100.0
}

type invoiceRequest struct {
	Month              int  `json:"month"`
	Year               int  `json:"year"`
	TeamID             *int `json:"teamId,omitempty"`
	IncludeUsageEvents bool `json:"includeUsageEvents"`
}

// UsageBucket is one rolling-window utilization reading from the usage
// endpoint.
type UsageBucket struct {
	Utilization float64 `json:"utilization"` // 0-100
	ResetsAt    string  `json:"resets_at"`
}

type UsageData struct {
	FiveHour *UsageBucket `json:"five_hour"`
	SevenDay *UsageBucket `json:"seven_day"`
}
