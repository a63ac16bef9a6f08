// Command refprice fetches the reference and venue prices for one market
// and prints the deviation. Operator utility for sanity-checking a config
// before letting the agent trade on it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"maker_go/internal/domain"
	"maker_go/internal/gateway/venue"
	"maker_go/internal/infra"
	"maker_go/internal/oracle"
	"maker_go/pkg/quant"
)

func main() {
	marketID := flag.String("market", "", "market id to check (default: first enabled market)")
	flag.Parse()

	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	markets, err := cfg.DomainMarkets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var target *domain.MarketConfig
	for i := range markets {
		m := &markets[i]
		if (*marketID == "" && m.Enabled) || m.ID == *marketID {
			target = m
			break
		}
	}
	if target == nil {
		fmt.Fprintf(os.Stderr, "no matching market for %q\n", *marketID)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	refClient := venue.NewClient(cfg.Reference.RestURL, cfg.Reference.WSURL)
	orc := oracle.New(refClient, []oracle.RefMarket{{
		MarketID:      target.ID,
		BaseSymbol:    target.BaseSymbol,
		QuoteSymbol:   target.QuoteSymbol,
		BaseDecimals:  target.BaseDecimals,
		QuoteDecimals: target.QuoteDecimals,
	}}, infra.NewRealClock(), oracle.Options{})

	fmt.Printf("=== %s reference price check ===\n\n", target.ID)

	ref, ok := orc.GetReferencePrice(ctx, target.BaseSymbol, target.QuoteSymbol)
	if !ok {
		fmt.Fprintln(os.Stderr, "reference price unavailable")
		os.Exit(1)
	}
	fmt.Printf("📊 reference (%s): %s %s\n", cfg.Reference.RestURL, ref.String(), target.QuoteSymbol)

	venueClient := venue.NewClient(cfg.Venue.RestURL, cfg.Venue.WSURL)
	book, err := venueClient.GetOrderbook(ctx, target.ID, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "venue book: %v\n", err)
		os.Exit(1)
	}
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		fmt.Fprintln(os.Stderr, "venue book is empty")
		os.Exit(1)
	}
	mid, err := quant.Mid(bid, ask)
	if err != nil {
		fmt.Fprintf(os.Stderr, "venue mid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("📊 venue mid (%s):  %s %s\n", cfg.Venue.Network, mid.String(), target.QuoteSymbol)

	pct, err := quant.DeviationPercent(mid, ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deviation: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n💹 deviation: %s%%\n", pct.StringFixed(4))
}
