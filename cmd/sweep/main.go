// Command sweep runs one stale-payment reconciliation pass and exits. Use
// it from cron when the API runs with STALE_SWEEP_INTERVAL=0.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"eventreg/internal/config"
	"eventreg/internal/database"
	"eventreg/internal/gateway"
	"eventreg/internal/modules/ledger"
	"eventreg/internal/modules/registration"
	"eventreg/internal/modules/webhook"
	"eventreg/internal/repository"
)

func main() {
	olderThan := flag.Duration("older-than", 0, "reconcile pending payments older than this (default STALE_PENDING_AFTER)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("cmd", "sweep")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if *olderThan == 0 {
		*olderThan = cfg.StalePendingAfter
	}

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	gw := gateway.NewStripe(gateway.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Timeout:       cfg.GatewayTimeout,
		BaseURL:       cfg.StripeBaseURL,
	}, logger)

	// No websocket clients in a one-shot process.
	regs := registration.NewService(db, ledger.NewService(db, logger), nil, logger)
	svc := webhook.NewService(db, gw,
		repository.NewTransactionRepository(db),
		repository.NewProcessedEventRepository(db),
		repository.NewTenantRepository(db),
		regs, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := svc.SweepStale(ctx, *olderThan)
	if err != nil {
		logger.Error("sweep failed", "err", err)
		os.Exit(1)
	}
	logger.Info("sweep completed",
		"older_than", olderThan.String(),
		"confirmed", res.Confirmed,
		"expired", res.Expired,
		"rolled_back", res.RolledBack,
		"skipped", res.Skipped,
	)
}
