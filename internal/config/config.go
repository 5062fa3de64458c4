package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spendmon/spendmon/internal/core"
)

// Account tiers recognized by the five-hour window estimator.
const (
	TierFree  = "free"
	TierPro   = "pro"
	TierMax5  = "max5"
	TierMax20 = "max20"
)

// Settings is the persisted daemon configuration. Spending limits are
// expressed in CurrencyCode; ExchangeRates maps a currency code to its
// value per 1 USD.
type Settings struct {
	CurrencyCode           string                `json:"currency_code"`
	WarningLimit           float64               `json:"warning_limit"`
	UpperLimit             float64               `json:"upper_limit"`
	RefreshIntervalSeconds int                   `json:"refresh_interval_seconds"`
	AccountTier            string                `json:"account_tier"`
	Providers              []core.ProviderConfig `json:"providers"`
	LogDir                 string                `json:"log_dir,omitempty"`
	ExchangeRates          map[string]float64    `json:"exchange_rates,omitempty"`
	DesktopNotifications   bool                  `json:"desktop_notifications"`
}

func DefaultSettings() Settings {
	return Settings{
		CurrencyCode:           "USD",
		WarningLimit:           100,
		UpperLimit:             200,
		RefreshIntervalSeconds: 30,
		AccountTier:            TierPro,
		Providers: []core.ProviderConfig{
			{ID: "cursor", Provider: "cursor", TokenEnv: "CURSOR_SESSION_TOKEN"},
			{ID: "claude-code", Provider: "claude-code"},
		},
		DesktopNotifications: true,
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "spendmon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "spendmon")
}

func SettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

// DefaultLogDir is the Claude Code session log root used when
// Settings.LogDir is empty.
func DefaultLogDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "projects")
}

func Load() (Settings, error) {
	return LoadFrom(SettingsPath())
}

func LoadFrom(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("reading settings: %w", err)
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("parsing settings %s: %w", path, err)
	}

	if settings.RefreshIntervalSeconds <= 0 {
		settings.RefreshIntervalSeconds = 30
	}
	if settings.CurrencyCode == "" {
		settings.CurrencyCode = "USD"
	}
	if settings.AccountTier == "" {
		settings.AccountTier = TierPro
	}
	if settings.Providers == nil {
		settings.Providers = DefaultSettings().Providers
	}

	return settings, nil
}

// saveMu guards read-modify-write cycles on the settings file.
var saveMu sync.Mutex

func Save(settings Settings) error {
	return SaveTo(SettingsPath(), settings)
}

func SaveTo(path string, settings Settings) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// SaveLimits persists new spending limits into the settings file (read-modify-write).
func SaveLimits(warning, upper float64) error {
	return SaveLimitsTo(SettingsPath(), warning, upper)
}

func SaveLimitsTo(path string, warning, upper float64) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	settings, err := LoadFrom(path)
	if err != nil {
		settings = DefaultSettings()
	}
	settings.WarningLimit = warning
	settings.UpperLimit = upper
	return SaveTo(path, settings)
}

// SaveProviders persists the enabled provider set into the settings file (read-modify-write).
func SaveProviders(providers []core.ProviderConfig) error {
	return SaveProvidersTo(SettingsPath(), providers)
}

func SaveProvidersTo(path string, providers []core.ProviderConfig) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	settings, err := LoadFrom(path)
	if err != nil {
		settings = DefaultSettings()
	}
	settings.Providers = providers
	return SaveTo(path, settings)
}

// TierQuota returns the five-hour window allowances for an account tier.
// Message counts follow the published plan multipliers; token ceilings are
// practical estimates observed in session logs, not contractual numbers.
// Unknown tiers fall back to pro.
func TierQuota(tier string) (messages float64, tokens int) {
	switch tier {
	case TierFree:
		return 10, 4000
	case TierMax5:
		return 225, 88000
	case TierMax20:
		return 900, 220000
	default:
		return 45, 19000
	}
}
