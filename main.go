// Package main provides the entry point of the medipay payment and settlement engine
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/medipay/app/handlers"
	"github.com/amirphl/medipay/app/logger"
	"github.com/amirphl/medipay/app/middleware"
	"github.com/amirphl/medipay/app/router"
	"github.com/amirphl/medipay/app/scheduler"
	"github.com/amirphl/medipay/app/services"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/amirphl/medipay/config"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application holds the long lived components started by main
type Application struct {
	config    *config.ProductionConfig
	logger    *zap.Logger
	router    router.Router
	db        *gorm.DB
	cache     *redis.Client
	queue     *asynq.Client
	worker    *asynq.Server
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("starting medipay",
		zap.String("environment", cfg.Deployment.Environment),
		zap.String("version", cfg.Deployment.Version),
	)

	app, err := initializeApplication(cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize application", zap.Error(err))
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.router.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	select {
	case sig := <-sigChan:
		zl.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			zl.Error("http server stopped", zap.Error(err))
		}
	}

	app.shutdown()
	zl.Info("medipay stopped")
}

// initializeDatabase opens the postgres pool; constraint violations surface as gorm.ErrDuplicatedKey
func initializeDatabase(cfg config.DatabaseConfig, zl *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(gormWriter{zl.Sugar()}, gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	zl.Info("database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return db, nil
}

// gormWriter routes gorm's slow query and error lines to zap
type gormWriter struct {
	log *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warnf(format, args...)
}

// initializeCache returns nil when caching is disabled
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rc, nil
}

// startCacheHealthMonitor pings redis periodically and logs transitions
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, zl *zap.Logger) func() {
	if client == nil || interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		healthy := true
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
				err := client.Ping(pingCtx).Err()
				pingCancel()
				switch {
				case err != nil && healthy:
					zl.Warn("redis unreachable", zap.Error(err))
					healthy = false
				case err == nil && !healthy:
					zl.Info("redis reachable again")
					healthy = true
				}
			}
		}
	}()
	return cancel
}

func initializeApplication(cfg *config.ProductionConfig, zl *zap.Logger) (*Application, error) {
	app := &Application{config: cfg, logger: zl}

	db, err := initializeDatabase(cfg.Database, zl)
	if err != nil {
		return nil, err
	}
	app.db = db

	cache, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	app.cache = cache
	app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(context.Background(), cache, cfg.Cache.HealthCheckInterval, zl))

	// Repositories
	orderRepo := repository.NewPaymentOrderRepository(db)
	txnRepo := repository.NewPaymentTransactionRepository(db)
	refundRepo := repository.NewRefundRecordRepository(db)
	balanceRepo := repository.NewUserBalanceRepository(db)
	balanceTxRepo := repository.NewBalanceTransactionRepository(db)
	priceRepo := repository.NewPriceConfigRepository(db)
	configRepo := repository.NewPaymentConfigRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	cipher, err := services.NewConfigCipher(cfg.Payment.ConfigEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build config cipher: %w", err)
	}
	tokenService, err := services.NewTokenService(
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build token service: %w", err)
	}

	// Each provider gets its own outbound budget
	newLimiter := func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(cfg.Payment.GatewayRatePerSecond), cfg.Payment.GatewayBurst)
	}
	gateways := []services.PaymentGateway{
		services.NewAlipayClient(cfg.Payment.GatewayTimeout, newLimiter()),
		services.NewWechatPayClient(cfg.Payment.GatewayTimeout, newLimiter()),
	}

	// Background reconciliation
	var reconciler businessflow.ReconcileScheduler
	var redisOpt asynq.RedisConnOpt
	if cfg.Queue.Enabled {
		redisOpt, err = asynq.ParseRedisURI(cfg.Queue.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid queue redis url: %w", err)
		}
		app.queue = asynq.NewClient(redisOpt)
		reconciler = scheduler.NewReconcileQueue(app.queue, cfg.Queue, zl.Named("reconcile"))
	}

	// Business flows
	ledger := businessflow.NewBalanceLedger(balanceRepo, balanceTxRepo)
	settingsFlow := businessflow.NewPaymentSettingsFlow(
		priceRepo,
		configRepo,
		auditRepo,
		cipher,
		map[models.PaymentMethod]map[string]string{
			models.PaymentMethodAlipay: cfg.Alipay.AsMap(),
			models.PaymentMethodWechat: cfg.WechatPay.AsMap(),
		},
		cache,
		cfg.Cache.RedisPrefix,
		cfg.Cache.DefaultTTL,
		zl.Named("settings"),
	)
	// The settings flow is both the price resolver and the credential source
	credentials := settingsFlow.(businessflow.CredentialSource)
	prices := settingsFlow.(businessflow.PriceResolver)

	paymentFlow := businessflow.NewPaymentFlow(
		orderRepo,
		txnRepo,
		appointmentRepo,
		auditRepo,
		ledger,
		prices,
		credentials,
		gateways,
		reconciler,
		cache,
		db,
		cfg.Payment,
		cfg.Cache,
		zl.Named("payment"),
	)
	refundFlow := businessflow.NewRefundFlow(
		orderRepo,
		txnRepo,
		refundRepo,
		auditRepo,
		ledger,
		credentials,
		gateways,
		db,
		cfg.Payment,
		zl.Named("refund"),
	)
	balanceFlow := businessflow.NewBalanceFlow(ledger, balanceTxRepo, auditRepo, db, zl.Named("balance"))

	if cfg.Queue.Enabled {
		worker := scheduler.NewReconcileWorker(paymentFlow, zl.Named("reconcile"))
		app.worker = scheduler.NewReconcileServer(redisOpt, cfg.Queue, zl.Named("asynq"))
		if err := app.worker.Start(worker.NewServeMux()); err != nil {
			return nil, fmt.Errorf("failed to start reconcile worker: %w", err)
		}
	}

	// HTTP layer
	v := handlers.NewValidator()
	hl := zl.Named("http")
	h := router.Handlers{
		Payment:  handlers.NewPaymentHandler(paymentFlow, v, hl),
		Refund:   handlers.NewRefundHandler(refundFlow, v, hl),
		Balance:  handlers.NewBalanceHandler(balanceFlow, v, hl),
		Settings: handlers.NewPaymentSettingsHandler(settingsFlow, v, hl),
		Callback: handlers.NewPaymentCallbackHandler(paymentFlow, v, hl),
		Admin:    handlers.NewPaymentAdminHandler(paymentFlow, v, hl),
	}

	healthChecks := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if cache != nil {
		healthChecks["redis"] = func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		}
	}

	app.router = router.NewFiberRouter(cfg, h, middleware.NewAuthMiddleware(tokenService), healthChecks, zl)
	return app, nil
}

// shutdown stops accepting requests first, then drains the worker and closes connections
func (a *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.router.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.logger.Error("http server shutdown failed", zap.Error(err))
	}

	if a.worker != nil {
		a.worker.Shutdown()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Warn("queue client close failed", zap.Error(err))
		}
	}

	for _, stop := range a.stopFuncs {
		stop()
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
}
