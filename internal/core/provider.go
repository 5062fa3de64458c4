package core

import (
	"context"
	"os"
)

// ProviderConfig describes one enabled spending source. Credentials are
// runtime-only: the Token field is resolved from the credential store or
// environment at startup and never serialized.
type ProviderConfig struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`           // "cursor", "claude-code"
	TokenEnv string `json:"token_env,omitempty"` // env var holding the bearer token
	BaseURL  string `json:"base_url,omitempty"`  // custom API base URL
	LogDir   string `json:"log_dir,omitempty"`   // local log directory override
	Token    string `json:"-"`                   // runtime-only: bearer/session token
}

// ResolveToken prefers the runtime token, falling back to the configured
// environment variable.
func (c ProviderConfig) ResolveToken() string {
	if c.Token != "" {
		return c.Token
	}
	return os.Getenv(c.TokenEnv)
}

type ProviderInfo struct {
	Name         string   // e.g. "Cursor", "Claude Code"
	Capabilities []string // "spending", "usage_window", "invoice"
	DocURL       string
}

// SpendingProvider is one independent spending/usage source. Fetch returns a
// data-level failure inside the snapshot (Status + Message) whenever it can;
// a non-nil error is reserved for failures where no meaningful snapshot
// exists at all. Implementations must honor ctx cancellation.
type SpendingProvider interface {
	ID() string

	Describe() ProviderInfo

	Fetch(ctx context.Context, cfg ProviderConfig) (ProviderSnapshot, error)
}
