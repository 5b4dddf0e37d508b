package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/example/custody-infra/internal/api"
	"github.com/example/custody-infra/internal/asset"
	"github.com/example/custody-infra/internal/auth"
	"github.com/example/custody-infra/internal/config"
	"github.com/example/custody-infra/internal/crypto"
	"github.com/example/custody-infra/internal/oracle"
	"github.com/example/custody-infra/internal/security"
	"github.com/example/custody-infra/internal/vault"
	"github.com/example/custody-infra/pkg/journal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	allowlist, err := security.ParseCIDRAllowlist(cfg.IPAllowlist)
	if err != nil {
		logger.Error("invalid IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	// Durable stores are optional outside production.
	store := vault.Store(vault.NopStore{})
	var clientStore auth.ClientStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = vault.NewPostgresStore(pool)
		clientStore = &auth.PostgresClientStore{Pool: pool}
	}

	var rateLimiter *security.RedisTokenBucket
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "custody_api",
			Capacity:   cfg.RateLimitRPS,
			RefillRate: float64(cfg.RateLimitRPS),
		}
	}

	var archiveOpts []journal.ArchiveOption
	if cfg.JournalSealKey != "" {
		key, err := hex.DecodeString(cfg.JournalSealKey)
		if err != nil {
			logger.Error("invalid JOURNAL_SEAL_KEY", "error", err)
			os.Exit(1)
		}
		sealer, err := crypto.NewSealer(key)
		if err != nil {
			logger.Error("invalid JOURNAL_SEAL_KEY", "error", err)
			os.Exit(1)
		}
		archiveOpts = append(archiveOpts, journal.WithSealer(sealer))
	}

	archive, err := journal.NewSQLiteArchive(cfg.JournalPath, archiveOpts...)
	if err != nil {
		logger.Error("failed to open journal archive", "error", err)
		os.Exit(1)
	}
	defer archive.Close()
	chain := journal.NewChain(archive)

	keySet, err := auth.NewKeySet()
	if err != nil {
		logger.Error("failed to create keyset", "error", err)
		os.Exit(1)
	}

	var oauthServer *auth.OAuthServer
	if clientStore != nil {
		oauthServer = &auth.OAuthServer{
			Store:          clientStore,
			Keys:           keySet,
			Issuer:         "custody-infra",
			AccessTokenTTL: 15 * time.Minute,
		}
	}

	svc, err := vault.NewService(
		vault.Config{
			CapacityLimit:   cfg.CapacityLimit,
			WithdrawalLimit: cfg.WithdrawalLimit,
			StableAsset:     asset.ID(cfg.StableAsset),
			StableDecimals:  cfg.StableDecimals,
			SwapDeadline:    cfg.SwapDeadline,
		},
		asset.NewRegistry(),
		oracle.NewAdapter(oracle.NewHTTPFeed(cfg.OracleURL), cfg.NativeDecimals, cfg.FeedDecimals, cfg.PriceStaleness),
		vault.NewHTTPCustodian(cfg.CustodyURL),
		vault.NewHTTPRouter(cfg.RouterURL, cfg.RouterSpender),
		vault.WithStore(store),
		vault.WithRecorder(chain),
		vault.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to build ledger service", "error", err)
		os.Exit(1)
	}

	if cfg.DatabaseURL != "" {
		if err := svc.RestoreFromStore(context.Background()); err != nil {
			logger.Error("failed to restore ledger from store", "error", err)
			os.Exit(1)
		}
	}

	router, err := api.NewRouter(api.Dependencies{
		Logger:       logger,
		Vault:        svc,
		OAuth:        oauthServer,
		JWTValidator: &auth.JWTValidator{KeySet: keySet, Issuer: "custody-infra"},
		Recorder:     chain,
		RateLimiter:  rateLimiter,
		IPAllowlist:  allowlist,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.TLSCertFile != "" {
		tlsCfg, err := security.LoadServerTLSConfig(security.TLSConfig{
			CertFile:          cfg.TLSCertFile,
			KeyFile:           cfg.TLSKeyFile,
			CAFile:            cfg.TLSClientCAFile,
			RequireClientAuth: cfg.TLSClientCAFile != "",
		})
		if err != nil {
			logger.Error("invalid TLS configuration", "error", err)
			os.Exit(1)
		}
		srv.TLSConfig = tlsCfg
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("custody vault listening", "addr", cfg.ListenAddr, "env", cfg.Environment, "tls", srv.TLSConfig != nil)
	serve := srv.ListenAndServe
	if srv.TLSConfig != nil {
		serve = func() error { return srv.ListenAndServeTLS("", "") }
	}
	if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
