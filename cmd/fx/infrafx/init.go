// Package infrafx provides configuration, logging, storage and the payment
// gateway to the fx graph.
package infrafx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"eventreg/internal/config"
	"eventreg/internal/database"
	"eventreg/internal/gateway"
	"eventreg/internal/pkg/jwt"
	"eventreg/internal/repository"
)

var Module = fx.Options(
	fx.Provide(
		config.Load,
		provideLogger,
		provideDB,
		provideGateway,
		provideJWT,
		repository.NewTenantRepository,
		repository.NewTransactionRepository,
		repository.NewProcessedEventRepository,
	),
)

func provideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProdLike() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h).With("service", "eventreg", "env", cfg.AppEnv)
	slog.SetDefault(logger)
	return logger
}

func provideDB(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrated")
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

func provideGateway(cfg *config.Config, logger *slog.Logger) gateway.Gateway {
	return gateway.NewStripe(gateway.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Timeout:       cfg.GatewayTimeout,
		BaseURL:       cfg.StripeBaseURL,
	}, logger)
}

func provideJWT(cfg *config.Config) *jwt.Service {
	return jwt.New(cfg.JWTSecret, cfg.JWTAccessTTL)
}
