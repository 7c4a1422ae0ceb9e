package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultJWTSecret = "change-me-jwt-secret"

	// Checkout session expiry bounds accepted by the gateway.
	minCheckoutTTL = 30 * time.Minute
	maxCheckoutTTL = 24 * time.Hour
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"dev"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:eventreg.db?_pragma=foreign_keys(1)"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret      string        `env:"JWT_SECRET" envDefault:"change-me-jwt-secret"`
	JWTAccessTTL   time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	AllowedOrigins []string      `env:"CORS_ORIGINS" envSeparator:","`

	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	StripeBaseURL       string        `env:"STRIPE_BASE_URL"`
	GatewayTimeout      time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	CheckoutSuccessURL string        `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:3000/registrations/success"`
	CheckoutCancelURL  string        `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:3000/registrations/cancel"`
	CheckoutTTL        time.Duration `env:"CHECKOUT_TTL" envDefault:"30m"`

	StaleSweepInterval time.Duration `env:"STALE_SWEEP_INTERVAL" envDefault:"10m"`
	StalePendingAfter  time.Duration `env:"STALE_PENDING_AFTER" envDefault:"2h"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProdLike() bool {
	return isProdLike(c.AppEnv)
}

func validateConfig(cfg *Config) error {
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be > 0")
	}
	if cfg.CheckoutTTL < minCheckoutTTL || cfg.CheckoutTTL > maxCheckoutTTL {
		return fmt.Errorf("CHECKOUT_TTL must be between %s and %s", minCheckoutTTL, maxCheckoutTTL)
	}
	if cfg.StaleSweepInterval < 0 {
		return fmt.Errorf("STALE_SWEEP_INTERVAL must not be negative")
	}
	if cfg.StalePendingAfter < cfg.CheckoutTTL {
		return fmt.Errorf("STALE_PENDING_AFTER must be at least CHECKOUT_TTL")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if strings.TrimSpace(cfg.StripeSecretKey) == "" {
			return fmt.Errorf("in prod/release STRIPE_SECRET_KEY must be set")
		}
		if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
			return fmt.Errorf("in prod/release STRIPE_WEBHOOK_SECRET must be set")
		}
		if cfg.AutoMigrate {
			return fmt.Errorf("in prod/release AUTO_MIGRATE must be false")
		}
	}
	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
