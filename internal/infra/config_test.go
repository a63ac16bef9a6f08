package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfigYAML = `
app:
  name: maker
  version: 0.3.0
venue:
  network: testnet
  rest_url: https://venue.test
  ws_url: wss://venue.test/ws
reference:
  rest_url: https://reference.test
markets:
  - id: INJ/USDT
    enabled: true
    instrument: spot
    base_symbol: INJ
    quote_symbol: USDT
    base_decimals: 18
    quote_decimals: 6
    tick_size: "0.001"
    spread_pct: "0.5"
    min_spread_pct: "0.1"
    max_spread_pct: "2.0"
    order_size: "100"
    max_wallets: 2
    orders_per_wallet: 2
    weighting: balanced
    correction:
      enabled: true
      threshold_pct: "5"
      emergency_threshold_pct: "20"
      aggressiveness: "1.0"
      max_correction_size: "500"
      emergency_order_size: "1000"
      cooldown_sec: 300
      emergency_cooldown_sec: 600
wallets:
  - id: primary
    name: Primary
    enabled: true
    subaccount: "0"
    balance_threshold: "50"
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Venue.Network != "testnet" {
		t.Errorf("network = %q", cfg.Venue.Network)
	}
	// Defaults applied where the file is silent.
	if cfg.Reference.CacheTTLSec != 30 {
		t.Errorf("cache ttl default = %d, want 30", cfg.Reference.CacheTTLSec)
	}
	if cfg.Engine.SubmitDelayMS != 3000 {
		t.Errorf("submit delay default = %d, want 3000", cfg.Engine.SubmitDelayMS)
	}

	markets, err := cfg.DomainMarkets()
	if err != nil {
		t.Fatalf("DomainMarkets() error = %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("markets = %d, want 1", len(markets))
	}
	m := markets[0]
	if m.ID != "INJ/USDT" || !m.Enabled {
		t.Errorf("unexpected market %+v", m)
	}
	if m.BaseDecimals != 18 || m.QuoteDecimals != 6 {
		t.Errorf("decimals = %d/%d", m.BaseDecimals, m.QuoteDecimals)
	}
	if m.Correction.CooldownSec != 300 || m.Correction.EmergencyCooldownSec != 600 {
		t.Errorf("cooldowns = %d/%d", m.Correction.CooldownSec, m.Correction.EmergencyCooldownSec)
	}
}

func TestLoadConfig_EnvOverridesKey(t *testing.T) {
	t.Setenv("MAKER_WALLET_PRIMARY_KEY", "supersecret")

	cfg, err := LoadConfig(writeTempConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	wallets, err := cfg.DomainWallets()
	if err != nil {
		t.Fatal(err)
	}
	if wallets[0].PrivateKey != "supersecret" {
		t.Errorf("env override not applied, key = %q", wallets[0].PrivateKey)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mangler func(string) string
	}{
		{"no markets", func(s string) string { return replaceLine(s, "  - id: INJ/USDT", "  - id: \"\"") }},
		{"emergency below correction", func(s string) string {
			return replaceLine(s, "      emergency_threshold_pct: \"20\"", "      emergency_threshold_pct: \"4\"")
		}},
		{"zero tick", func(s string) string { return replaceLine(s, "    tick_size: \"0.001\"", "    tick_size: \"0\"") }},
		{"bad weighting", func(s string) string { return replaceLine(s, "    weighting: balanced", "    weighting: sideways") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeTempConfig(t, tt.mangler(testConfigYAML))); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func replaceLine(s, old, new string) string {
	return strings.Replace(s, old, new, 1)
}
