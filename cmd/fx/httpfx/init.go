// Package httpfx builds the gin router and runs the HTTP server and the
// stale payment sweeper for the lifetime of the fx app.
package httpfx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"eventreg/internal/config"
	"eventreg/internal/middleware"
	"eventreg/internal/modules/cancellation"
	"eventreg/internal/modules/notification"
	"eventreg/internal/modules/payment"
	"eventreg/internal/modules/webhook"
	"eventreg/internal/pkg/jwt"
	"eventreg/internal/repository"
)

var Module = fx.Options(
	fx.Provide(ProvideRouter),
	fx.Invoke(StartServer, StartSweeper),
)

type RouterParams struct {
	fx.In

	Config       *config.Config
	Logger       *slog.Logger
	JWT          *jwt.Service
	Tenants      *repository.TenantRepository
	Payment      *payment.Handler
	Cancellation *cancellation.Handler
	Webhook      *webhook.Handler
	Notification *notification.Handler
}

func ProvideRouter(p RouterParams) *gin.Engine {
	if p.Config.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(middleware.ErrorLogger(p.Logger))
	r.Use(middleware.CORS(p.Config.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		p.Webhook.RegisterPublicRoutes(v1)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(p.JWT, p.Tenants))
		p.Payment.RegisterProtectedRoutes(protected)
		p.Cancellation.RegisterProtectedRoutes(protected)

		ws := v1.Group("")
		ws.Use(middleware.QueryTokenAuth(p.JWT, p.Tenants))
		p.Notification.RegisterRoutes(ws)
	}
	return r
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, hub *notification.Hub, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("http server listening", "addr", cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping http server")
			hub.Close()
			return srv.Shutdown(ctx)
		},
	})
}

// StartSweeper periodically reconciles payments whose webhook never
// arrived. A zero interval disables it.
func StartSweeper(lc fx.Lifecycle, cfg *config.Config, svc *webhook.Service, logger *slog.Logger) {
	if cfg.StaleSweepInterval == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(cfg.StaleSweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						res, err := svc.SweepStale(ctx, cfg.StalePendingAfter)
						if err != nil {
							logger.Error("stale payment sweep failed", "err", err)
							continue
						}
						logger.Info("stale payment sweep done",
							"confirmed", res.Confirmed,
							"expired", res.Expired,
							"rolled_back", res.RolledBack,
							"skipped", res.Skipped,
						)
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
