package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/app"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/infra"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	interval := flag.Duration("interval", 30*time.Second, "strategy pass cadence")
	flag.Parse()

	// Secrets ride in through the environment; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := infra.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	infra.PrintBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := app.NewService(log)
	if res := svc.Initialize(ctx, cfg); !res.Success {
		log.Error("initialization failed", zap.String("error", res.Error))
		os.Exit(1)
	}
	defer svc.Disconnect()

	if res := svc.GetAccountState(ctx); !res.Success {
		log.Warn("initial account sync failed", zap.String("error", res.Error))
	}

	log.Info("strategy loop started",
		zap.Duration("interval", *interval),
		zap.Strings("markets", cfg.Markets))

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			res := svc.ExecuteStrategy(ctx, nil)
			if !res.Success {
				log.Warn("strategy pass failed", zap.String("error", res.Error))
				continue
			}
			log.Debug("strategy pass complete")
		}
	}
}
