// Package modulesfx provides the registration, payment, webhook,
// cancellation and notification modules.
package modulesfx

import (
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"eventreg/internal/config"
	"eventreg/internal/gateway"
	"eventreg/internal/modules/cancellation"
	"eventreg/internal/modules/ledger"
	"eventreg/internal/modules/notification"
	"eventreg/internal/modules/payment"
	"eventreg/internal/modules/pricing"
	"eventreg/internal/modules/registration"
	"eventreg/internal/modules/webhook"
	"eventreg/internal/repository"
)

var Module = fx.Options(
	fx.Provide(
		ledger.NewService,
		pricing.NewService,
		notification.NewHub,
		provideRegistrations,
		providePayment,
		provideWebhook,
		provideCancellation,

		payment.NewHandler,
		cancellation.NewHandler,
		provideWebhookHandler,
		provideNotificationHandler,
	),
)

func provideRegistrations(db *gorm.DB, l *ledger.Service, hub *notification.Hub, logger *slog.Logger) *registration.Service {
	return registration.NewService(db, l, hub, logger)
}

func providePayment(db *gorm.DB, gw gateway.Gateway, p *pricing.Service, regs *registration.Service, cfg *config.Config, logger *slog.Logger) *payment.Service {
	return payment.NewService(db, gw, p, regs, payment.Options{
		SuccessURL:  cfg.CheckoutSuccessURL,
		CancelURL:   cfg.CheckoutCancelURL,
		CheckoutTTL: cfg.CheckoutTTL,
	}, logger)
}

func provideWebhook(
	db *gorm.DB,
	gw gateway.Gateway,
	txns *repository.TransactionRepository,
	markers *repository.ProcessedEventRepository,
	tenants *repository.TenantRepository,
	regs *registration.Service,
	logger *slog.Logger,
) *webhook.Service {
	return webhook.NewService(db, gw, txns, markers, tenants, regs, logger)
}

func provideCancellation(db *gorm.DB, gw gateway.Gateway, txns *repository.TransactionRepository, regs *registration.Service, logger *slog.Logger) *cancellation.Service {
	return cancellation.NewService(db, gw, txns, regs, logger)
}

func provideWebhookHandler(svc *webhook.Service, gw gateway.Gateway, logger *slog.Logger) *webhook.Handler {
	return webhook.NewHandler(svc, gw, logger)
}

func provideNotificationHandler(hub *notification.Hub, cfg *config.Config, logger *slog.Logger) *notification.Handler {
	return notification.NewHandler(hub, cfg.AllowedOrigins, logger)
}
