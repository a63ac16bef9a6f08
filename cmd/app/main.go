package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maker_go/internal/app"
)

func main() {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	markets := bootstrap.EnabledMarketIDs()
	if len(markets) == 0 {
		slog.Error("❌ no enabled markets configured")
		os.Exit(1)
	}

	bootstrap.Venue.StartOrderbookStream(ctx, markets)
	defer bootstrap.Venue.StopOrderbookStream()

	if err := bootstrap.Engine.Start(ctx, markets); err != nil {
		slog.Error("❌ engine start failed", slog.Any("error", err))
		os.Exit(1)
	}

	interval := bootstrap.Config.CycleInterval()
	slog.Info("✅ quoting loop started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runCycle(ctx, bootstrap)
	for {
		select {
		case <-ctx.Done():
			bootstrap.Engine.Stop()
			// Resting quotes stay on the venue so they survive restarts.
			slog.Info("👋 shutdown complete")
			return
		case <-ticker.C:
			runCycle(ctx, bootstrap)
		}
	}
}

func runCycle(ctx context.Context, bootstrap *app.Bootstrap) {
	if err := bootstrap.Engine.Execute(ctx); err != nil && ctx.Err() == nil {
		slog.Error("cycle failed", slog.Any("error", err))
	}
}
