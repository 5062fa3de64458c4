package providers

import (
	"github.com/spendmon/spendmon/internal/core"
	"github.com/spendmon/spendmon/internal/logmine"
	"github.com/spendmon/spendmon/internal/providers/claudecode"
	"github.com/spendmon/spendmon/internal/providers/cursor"
)

// AllProviders builds every known provider adapter. quota carries the
// account-tier window allowances used by log-mining providers.
func AllProviders(quota logmine.WindowQuota) []core.SpendingProvider {
	return []core.SpendingProvider{
		cursor.New(),
		claudecode.New(quota),
	}
}
