// Package app wires the agent together: config, logging, gateways and the
// quoting engine.
package app

import (
	"log/slog"
	"time"

	"maker_go/internal/deviation"
	"maker_go/internal/engine"
	"maker_go/internal/gateway/venue"
	"maker_go/internal/infra"
	"maker_go/internal/ledger"
	"maker_go/internal/oracle"
	"maker_go/internal/wallet"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Venue   *venue.Client
	Oracle  *oracle.Oracle
	Pool    *wallet.Pool
	Ledger  *ledger.Ledger
	Monitor *deviation.Monitor
	Engine  *engine.Engine

	marketIDs []string
}

// NewBootstrap creates an empty Bootstrap; Initialize does the work.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and builds the full collaborator graph.
func (b *Bootstrap) Initialize() error {
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))
	infra.PrintBanner(cfg)

	markets, err := cfg.DomainMarkets()
	if err != nil {
		return err
	}
	wallets, err := cfg.DomainWallets()
	if err != nil {
		return err
	}

	clock := infra.NewRealClock()

	b.Venue = venue.NewClient(cfg.Venue.RestURL, cfg.Venue.WSURL)

	// The reference instance is the same venue software on its
	// highest-liquidity network; market ids carry over.
	refClient := venue.NewClient(cfg.Reference.RestURL, cfg.Reference.WSURL)
	refMarkets := make([]oracle.RefMarket, 0, len(markets))
	for _, m := range markets {
		refMarkets = append(refMarkets, oracle.RefMarket{
			MarketID:      m.ID,
			BaseSymbol:    m.BaseSymbol,
			QuoteSymbol:   m.QuoteSymbol,
			BaseDecimals:  m.BaseDecimals,
			QuoteDecimals: m.QuoteDecimals,
		})
	}
	oracleOpts := oracle.Options{
		TTL:         time.Duration(cfg.Reference.CacheTTLSec) * time.Second,
		MaxAttempts: cfg.Reference.MaxAttempts,
	}
	if ms := cfg.Reference.MinCallIntervalMS; ms > 0 {
		oracleOpts.Limiter = infra.NewRateLimiter(1, 1000/float64(ms))
	}
	b.Oracle = oracle.New(refClient, refMarkets, clock, oracleOpts)

	b.Pool = wallet.NewPool(wallets)
	b.Ledger = ledger.New()
	b.Monitor = deviation.NewMonitor(clock, markets)
	b.Engine = engine.New(b.Venue, b.Oracle, b.Pool, b.Ledger, b.Monitor, clock, markets, engine.Options{
		SubmitDelay: cfg.SubmitDelay(),
	})

	b.marketIDs = b.marketIDs[:0]
	for _, m := range markets {
		if m.Enabled {
			b.marketIDs = append(b.marketIDs, m.ID)
		}
	}

	slog.Info("🚀 bootstrap complete",
		"markets", len(b.marketIDs),
		"wallets", len(wallets),
		"network", cfg.Venue.Network,
	)
	return nil
}

// EnabledMarketIDs lists the markets the engine should quote.
func (b *Bootstrap) EnabledMarketIDs() []string {
	return b.marketIDs
}
