package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rentflow/config"
	"rentflow/db"
	"rentflow/dispute"
	"rentflow/escrow"
	"rentflow/httpapi"
	"rentflow/identity"
	"rentflow/listing"
	"rentflow/logger"
	"rentflow/maintenance"
	"rentflow/metrics"
	"rentflow/outbox"
	"rentflow/rental"
	"rentflow/review"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("rentflow-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zl.Sync()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("bootstrap database pool", zap.Error(err))
	}
	defer pool.Close()

	// Escrow access is granted at bootstrap and sealed before any
	// traffic is served.
	ledger := escrow.NewLedger(pool)
	if err := ledger.Grant(escrow.CallerRentalEngine); err != nil {
		zl.Fatal("grant rental engine", zap.Error(err))
	}
	if err := ledger.Grant(escrow.CallerArbitration); err != nil {
		zl.Fatal("grant arbitration", zap.Error(err))
	}
	ledger.Seal()

	identityService := identity.NewService(identity.NewRepository(pool),
		cfg.JWT.SigningKey, time.Duration(cfg.JWT.ExpirationHours)*time.Hour)
	listingService := listing.NewService(pool)
	rentalService := rental.NewService(pool, rental.NewRepository(pool), ledger)
	disputeService := dispute.NewService(pool, dispute.NewRepository(pool), ledger,
		resolveAdminID(ctx, zl, identityService, cfg.AdminEmail))
	maintenanceService := maintenance.NewService(maintenance.NewRepository(pool))
	reviewService := review.NewService(review.NewRepository(pool))

	httpMetrics := metrics.NewHTTPMetrics(cfg.ServiceName)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(logger.Middleware(zl))
	e.Use(httpMetrics.Middleware())

	e.GET("/healthz", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	server := httpapi.NewServer(identityService, listingService, rentalService,
		disputeService, maintenanceService, reviewService, ledger, zl)
	server.Register(e)

	worker := outbox.NewWorker(pool, zl, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		zl.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zl.Fatal("server exited", zap.Error(err))
	}
	zl.Info("shut down cleanly")
}

// resolveAdminID maps the configured admin email to a user id. With no
// admin configured, arbitrator management is disabled until restart.
func resolveAdminID(ctx context.Context, zl *zap.Logger, svc *identity.Service, email string) string {
	if email == "" {
		zl.Warn("ADMIN_EMAIL not set; arbitrator management disabled")
		return ""
	}
	user, err := svc.FindByEmail(ctx, email)
	if err != nil {
		zl.Warn("admin lookup failed; arbitrator management disabled",
			zap.String("email", email), zap.Error(err))
		return ""
	}
	return user.ID
}
