package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/dropDatabas3/paygate/internal/access"
	"github.com/dropDatabas3/paygate/internal/cache"
	"github.com/dropDatabas3/paygate/internal/checkout"
	"github.com/dropDatabas3/paygate/internal/config"
	"github.com/dropDatabas3/paygate/internal/email"
	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/fulfillment"
	httpapi "github.com/dropDatabas3/paygate/internal/http"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/payment"
	"github.com/dropDatabas3/paygate/internal/progress"
	"github.com/dropDatabas3/paygate/internal/rate"
	"github.com/dropDatabas3/paygate/internal/revocation"
	"github.com/dropDatabas3/paygate/internal/store/cached"
	"github.com/dropDatabas3/paygate/internal/store/core"
	"github.com/dropDatabas3/paygate/internal/store/memory"
	"github.com/dropDatabas3/paygate/internal/store/pg"
	"github.com/dropDatabas3/paygate/internal/sweep"
	migrations "github.com/dropDatabas3/paygate/migrations/postgres"

	rdb "github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "paygate:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("PAYGATE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		c, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		cfg = c
	} else {
		cfg = config.Default()
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "paygate",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ====================== STORE ======================
	var store core.Store
	var pool func() *pgxpool.Pool

	switch cfg.Storage.Driver {
	case "postgres":
		pgStore, err := pg.New(ctx, cfg.Storage.DSN, pg.Tuning{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		if cfg.Flags.Migrate || cfg.App.Env == "dev" {
			if _, err := pg.RunMigrations(ctx, pgStore.Pool(), migrations.FS); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
		}
		store = pgStore
		pool = pgStore.Pool
	default:
		log.Warn("memory store selected, data is not durable")
		store = memory.New()
	}
	defer store.Close()

	// ====================== CACHE ======================
	cacheClient := cache.New(cache.Config{
		Driver: cfg.Cache.Kind,
		Addr:   cfg.Cache.Redis.Addr,
		DB:     cfg.Cache.Redis.DB,
		Prefix: cfg.Cache.Redis.Prefix,
	})
	defer cacheClient.Close()

	// Asset reads go through the cache; entitlement state never does.
	store = cached.New(store, cacheClient, 0)

	// ====================== RATE LIMIT ======================
	var limiter, refundLimiter rate.Limiter
	if cfg.Rate.Enabled {
		window := config.Duration(cfg.Rate.Checkout.Window, time.Minute)
		refundWindow := config.Duration(cfg.Rate.Refund.Window, 10*time.Minute)
		if cfg.Cache.Kind == "redis" {
			client := rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
			limiter = rate.NewRedisLimiter(client, "rl:", cfg.Rate.Checkout.Limit, window)
			refundLimiter = rate.NewRedisLimiter(client, "rl:refund:", cfg.Rate.Refund.Limit, refundWindow)
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.Checkout.Limit, window)
			refundLimiter = rate.NewMemoryLimiter(cfg.Rate.Refund.Limit, refundWindow)
		}
	}

	// ====================== PAYMENT ======================
	if cfg.Payment.WebhookSecret == "" {
		log.Warn("webhook secret not configured, every notification will be rejected")
	}
	processor := payment.NewHTTPClient(cfg.Payment.BaseURL, cfg.Payment.APIKey,
		config.Duration(cfg.Payment.Timeout, 15*time.Second))

	// ====================== SERVICES ======================
	entSvc := entitlement.NewService(store)
	checkoutSvc := checkout.NewService(store, processor)

	var notifier fulfillment.Notifier = fulfillment.NopNotifier{}
	if cfg.SMTP.Host != "" {
		sender := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		sender.TLSMode = cfg.SMTP.TLS
		sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		notifier = &fulfillment.EmailNotifier{Sender: sender}
	}

	verifier := fulfillment.NewVerifier(cfg.Payment.WebhookSecret)
	fulfillSvc := fulfillment.NewProcessor(verifier, entSvc, notifier, fulfillment.RetryPolicy{
		Attempts: cfg.Notice.Attempts,
		BaseWait: config.Duration(cfg.Notice.BaseWait, 2*time.Second),
	})

	keys, err := loadKeys(cfg)
	if err != nil {
		return err
	}
	issuer := access.NewIssuer(entSvc, store, &access.BaseURLResolver{Base: cfg.Access.DeliveryBaseURL},
		keys, config.Duration(cfg.Access.TTL, time.Hour))

	tracker := progress.NewTracker(store, entSvc)
	revokeSvc := revocation.NewService(entSvc, processor, config.Duration(cfg.Refund.Window, revocation.DefaultWindow))

	sweeper := sweep.New(store, entSvc, processor, sweep.Config{
		PendingTimeout: config.Duration(cfg.Sweep.PendingTimeout, 24*time.Hour),
		Interval:       config.Duration(cfg.Sweep.Interval, 10*time.Minute),
		BatchLimit:     cfg.Sweep.BatchLimit,
		Parallelism:    cfg.Sweep.Parallelism,
	})
	if cfg.Sweep.Enabled {
		go sweeper.Run(ctx)
	}

	// ====================== HTTP ======================
	authPub, err := decodeAuthKey(cfg.Auth.PublicKey)
	if err != nil {
		return err
	}

	metricsHandler, err := httpapi.RegisterMetrics(httpapi.MetricsConfig{Pool: pool})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	srv := &httpapi.Server{
		Store:         store,
		Cache:         cacheClient,
		Checkout:      checkoutSvc,
		Entitlements:  entSvc,
		Fulfillment:   fulfillSvc,
		Access:        issuer,
		Progress:      tracker,
		Revocation:    revokeSvc,
		Sweeper:       sweeper,
		AuthPub:       authPub,
		AuthIssuer:    cfg.Auth.Issuer,
		AdminKeyHash:  cfg.Admin.APIKeyHash,
		Limiter:       limiter,
		RefundLimiter: refundLimiter,
		Metrics:       metricsHandler,
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 10*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 30*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", cfg.Server.Addr), logger.String("env", cfg.App.Env))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// loadKeys builds the access signing key: from seed in prod, ephemeral in dev.
func loadKeys(cfg *config.Config) (*access.KeySet, error) {
	if cfg.Access.KeySeed != "" {
		return access.KeySetFromSeed(cfg.Access.KID, cfg.Access.KeySeed)
	}
	if cfg.App.Env == "prod" {
		return nil, fmt.Errorf("access.key_seed is required in prod (ephemeral keys break on restart)")
	}
	return access.NewEphemeralKeySet(cfg.Access.KID)
}

func decodeAuthKey(b64 string) (ed25519.PublicKey, error) {
	if b64 == "" {
		return nil, fmt.Errorf("auth.public_key is required")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("auth.public_key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("auth.public_key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
