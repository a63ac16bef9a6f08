package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"maker_go/internal/domain"
)

// Config holds every setting of the agent. Decimals are carried as strings
// in YAML and converted once, in Markets()/Wallets().
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Venue struct {
		Network string `yaml:"network"`
		RestURL string `yaml:"rest_url"`
		WSURL   string `yaml:"ws_url"`
	} `yaml:"venue"`

	// Reference points at the highest-liquidity network instance used as
	// the price ground truth.
	Reference struct {
		RestURL           string `yaml:"rest_url"`
		WSURL             string `yaml:"ws_url"`
		CacheTTLSec       int    `yaml:"cache_ttl_sec"`
		MaxAttempts       int    `yaml:"max_attempts"`
		MinCallIntervalMS int    `yaml:"min_call_interval_ms"`
	} `yaml:"reference"`

	Engine struct {
		IntervalSec   int `yaml:"interval_sec"`
		SubmitDelayMS int `yaml:"submit_delay_ms"`
	} `yaml:"engine"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Markets []MarketYAML `yaml:"markets"`
	Wallets []WalletYAML `yaml:"wallets"`
}

// MarketYAML is the on-disk form of domain.MarketConfig.
type MarketYAML struct {
	ID              string `yaml:"id"`
	Enabled         bool   `yaml:"enabled"`
	Instrument      string `yaml:"instrument"`
	BaseSymbol      string `yaml:"base_symbol"`
	QuoteSymbol     string `yaml:"quote_symbol"`
	BaseDecimals    int32  `yaml:"base_decimals"`
	QuoteDecimals   int32  `yaml:"quote_decimals"`
	TickSize        string `yaml:"tick_size"`
	SpreadPct       string `yaml:"spread_pct"`
	MinSpreadPct    string `yaml:"min_spread_pct"`
	MaxSpreadPct    string `yaml:"max_spread_pct"`
	OrderSize       string `yaml:"order_size"`
	MaxWallets      int    `yaml:"max_wallets"`
	OrdersPerWallet int    `yaml:"orders_per_wallet"`
	Weighting       string `yaml:"weighting"`

	Correction struct {
		Enabled               bool   `yaml:"enabled"`
		ThresholdPct          string `yaml:"threshold_pct"`
		EmergencyThresholdPct string `yaml:"emergency_threshold_pct"`
		Aggressiveness        string `yaml:"aggressiveness"`
		MaxCorrectionSize     string `yaml:"max_correction_size"`
		EmergencyOrderSize    string `yaml:"emergency_order_size"`
		CooldownSec           int    `yaml:"cooldown_sec"`
		EmergencyCooldownSec  int    `yaml:"emergency_cooldown_sec"`
	} `yaml:"correction"`
}

// WalletYAML is the on-disk form of domain.WalletConfig. The private key is
// normally omitted here and injected via MAKER_WALLET_<ID>_KEY.
type WalletYAML struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	PrivateKey         string `yaml:"private_key"`
	Subaccount         string `yaml:"subaccount"`
	Enabled            bool   `yaml:"enabled"`
	MaxOrdersPerMarket int    `yaml:"max_orders_per_market"`
	BalanceThreshold   string `yaml:"balance_threshold"`
}

// LoadConfig reads, env-overrides and validates the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Reference.CacheTTLSec <= 0 {
		cfg.Reference.CacheTTLSec = 30
	}
	if cfg.Reference.MaxAttempts <= 0 {
		cfg.Reference.MaxAttempts = 3
	}
	if cfg.Reference.MinCallIntervalMS <= 0 {
		cfg.Reference.MinCallIntervalMS = 500
	}
	if cfg.Engine.IntervalSec <= 0 {
		cfg.Engine.IntervalSec = 15
	}
	if cfg.Engine.SubmitDelayMS <= 0 {
		cfg.Engine.SubmitDelayMS = 3000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// overrideWithEnv lets environment variables replace credential material
// from the file. Environment wins over the file.
func overrideWithEnv(cfg *Config) {
	for i := range cfg.Wallets {
		envKey := "MAKER_WALLET_" + strings.ToUpper(cfg.Wallets[i].ID) + "_KEY"
		if key := os.Getenv(envKey); key != "" {
			cfg.Wallets[i].PrivateKey = key
		}
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Venue.RestURL == "" {
		return fmt.Errorf("venue rest_url is required")
	}
	if c.Reference.RestURL == "" {
		return fmt.Errorf("reference rest_url is required")
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market is required")
	}
	if len(c.Wallets) == 0 {
		return fmt.Errorf("at least one wallet is required")
	}

	seen := make(map[string]bool)
	for _, m := range c.Markets {
		if m.ID == "" {
			return fmt.Errorf("market with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate market id %q", m.ID)
		}
		seen[m.ID] = true
		if _, err := m.toDomain(); err != nil {
			return fmt.Errorf("market %s: %w", m.ID, err)
		}
	}

	for _, w := range c.Wallets {
		if w.ID == "" {
			return fmt.Errorf("wallet with empty id")
		}
		if _, err := w.toDomain(); err != nil {
			return fmt.Errorf("wallet %s: %w", w.ID, err)
		}
	}
	return nil
}

// SubmitDelay returns the mandatory delay between consecutive order
// submissions.
func (c *Config) SubmitDelay() time.Duration {
	return time.Duration(c.Engine.SubmitDelayMS) * time.Millisecond
}

// CycleInterval returns the scheduler tick interval.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Engine.IntervalSec) * time.Second
}

// DomainMarkets converts all configured markets.
func (c *Config) DomainMarkets() ([]domain.MarketConfig, error) {
	out := make([]domain.MarketConfig, 0, len(c.Markets))
	for _, m := range c.Markets {
		dm, err := m.toDomain()
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		out = append(out, dm)
	}
	return out, nil
}

// DomainWallets converts all configured wallets.
func (c *Config) DomainWallets() ([]domain.WalletConfig, error) {
	out := make([]domain.WalletConfig, 0, len(c.Wallets))
	for _, w := range c.Wallets {
		dw, err := w.toDomain()
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", w.ID, err)
		}
		out = append(out, dw)
	}
	return out, nil
}

func (m MarketYAML) toDomain() (domain.MarketConfig, error) {
	var out domain.MarketConfig
	var err error

	switch strings.ToUpper(m.Instrument) {
	case "SPOT", "":
		out.Instrument = domain.InstrumentSpot
	case "DERIVATIVE":
		out.Instrument = domain.InstrumentDerivative
	default:
		return out, fmt.Errorf("unknown instrument %q", m.Instrument)
	}

	switch strings.ToUpper(m.Weighting) {
	case "BALANCED", "":
		out.Weighting = domain.WeightingBalanced
	case "BUY_PRIORITIZED":
		out.Weighting = domain.WeightingBuyPrioritized
	case "SELL_PRIORITIZED":
		out.Weighting = domain.WeightingSellPrioritized
	default:
		return out, fmt.Errorf("unknown weighting %q", m.Weighting)
	}

	out.ID = m.ID
	out.Enabled = m.Enabled
	out.BaseSymbol = m.BaseSymbol
	out.QuoteSymbol = m.QuoteSymbol
	out.BaseDecimals = m.BaseDecimals
	out.QuoteDecimals = m.QuoteDecimals
	out.MaxWallets = m.MaxWallets
	out.OrdersPerWallet = m.OrdersPerWallet

	if out.TickSize, err = parseDec(m.TickSize, "tick_size"); err != nil {
		return out, err
	}
	if out.TickSize.Sign() <= 0 {
		return out, fmt.Errorf("tick_size must be positive")
	}
	if out.SpreadPct, err = parseDec(m.SpreadPct, "spread_pct"); err != nil {
		return out, err
	}
	if out.MinSpreadPct, err = parseDecOpt(m.MinSpreadPct); err != nil {
		return out, fmt.Errorf("min_spread_pct: %w", err)
	}
	if out.MaxSpreadPct, err = parseDecOpt(m.MaxSpreadPct); err != nil {
		return out, fmt.Errorf("max_spread_pct: %w", err)
	}
	if out.OrderSize, err = parseDec(m.OrderSize, "order_size"); err != nil {
		return out, err
	}

	cc := &out.Correction
	cc.Enabled = m.Correction.Enabled
	cc.CooldownSec = m.Correction.CooldownSec
	cc.EmergencyCooldownSec = m.Correction.EmergencyCooldownSec
	if cc.CooldownSec <= 0 {
		cc.CooldownSec = 300
	}
	if cc.EmergencyCooldownSec <= 0 {
		cc.EmergencyCooldownSec = 600
	}
	if cc.ThresholdPct, err = parseDecDefault(m.Correction.ThresholdPct, "5"); err != nil {
		return out, fmt.Errorf("threshold_pct: %w", err)
	}
	if cc.EmergencyThresholdPct, err = parseDecDefault(m.Correction.EmergencyThresholdPct, "20"); err != nil {
		return out, fmt.Errorf("emergency_threshold_pct: %w", err)
	}
	if cc.EmergencyThresholdPct.Cmp(cc.ThresholdPct) <= 0 {
		return out, fmt.Errorf("emergency threshold must be strictly above correction threshold")
	}
	if cc.Aggressiveness, err = parseDecDefault(m.Correction.Aggressiveness, "1"); err != nil {
		return out, fmt.Errorf("aggressiveness: %w", err)
	}
	if cc.MaxCorrectionSize, err = parseDecOpt(m.Correction.MaxCorrectionSize); err != nil {
		return out, fmt.Errorf("max_correction_size: %w", err)
	}
	if cc.EmergencyOrderSize, err = parseDecOpt(m.Correction.EmergencyOrderSize); err != nil {
		return out, fmt.Errorf("emergency_order_size: %w", err)
	}
	if cc.Enabled && cc.EmergencyOrderSize.Sign() <= 0 {
		// Default the emergency size to the capped correction size.
		cc.EmergencyOrderSize = out.OrderSize
		if cc.MaxCorrectionSize.Sign() > 0 {
			cc.EmergencyOrderSize = cc.MaxCorrectionSize
		}
	}

	return out, nil
}

func (w WalletYAML) toDomain() (domain.WalletConfig, error) {
	threshold, err := parseDecOpt(w.BalanceThreshold)
	if err != nil {
		return domain.WalletConfig{}, fmt.Errorf("balance_threshold: %w", err)
	}
	return domain.WalletConfig{
		ID:                 w.ID,
		Name:               w.Name,
		PrivateKey:         w.PrivateKey,
		Subaccount:         w.Subaccount,
		Enabled:            w.Enabled,
		MaxOrdersPerMarket: w.MaxOrdersPerMarket,
		BalanceThreshold:   threshold,
	}, nil
}

func parseDec(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func parseDecOpt(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseDecDefault(s, def string) (decimal.Decimal, error) {
	if s == "" {
		s = def
	}
	return decimal.NewFromString(s)
}

// ResolveConfigPath finds the config file.
// Priority: 1. MAKER_CONFIG env, 2. configs/config.yaml in the working dir.
func ResolveConfigPath() string {
	if p := os.Getenv("MAKER_CONFIG"); p != "" {
		return p
	}
	return filepath.Join("configs", "config.yaml")
}
