package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-api/internal/account"
	"identity-api/internal/audit"
	"identity-api/internal/auth"
	"identity-api/internal/config"
	"identity-api/internal/metrics"
	"identity-api/internal/users"
	"identity-api/pkg/logger"
	"identity-api/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Missing or weak signing material is fatal.
	codec, err := auth.NewCodec(cfg.Auth)
	if err != nil {
		log.Error("token codec init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	limiter, err := utils.NewLoginLimiter(rdb, "login_attempts", cfg.Login.MaxAttempts, cfg.Login.AttemptWindow)
	if err != nil {
		log.Error("login limiter init failed", "err", err)
		os.Exit(1)
	}

	var (
		db        *sql.DB
		directory users.Directory
		auditRepo audit.Repository
	)
	hasher := users.NewHasher(0)
	switch cfg.App.Store {
	case config.StoreMemory:
		log.Warn("using in-memory user directory; data is lost on restart")
		directory = users.NewMemoryDirectory(hasher)
		auditRepo = audit.NewMemoryRepo()
	default:
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		pgDir := users.NewPostgresDirectory(db, hasher)
		pgAudit := audit.NewPostgresRepo(db)
		if err := pgDir.EnsureSchema(rootCtx); err != nil {
			log.Error("users schema failed", "err", err)
			os.Exit(1)
		}
		if err := pgAudit.EnsureSchema(rootCtx); err != nil {
			log.Error("audit schema failed", "err", err)
			os.Exit(1)
		}
		directory = pgDir
		auditRepo = pgAudit
	}

	accounts, err := account.NewService(account.Deps{
		Directory: directory,
		Tokens:    auth.NewTokenRepository(codec),
		Limiter:   limiter,
		Audit:     audit.NewService(auditRepo),
		Metrics:   m,
		Logger:    log,
	})
	if err != nil {
		log.Error("account service init failed", "err", err)
		os.Exit(1)
	}

	if cfg.Seed.AdminEmail != "" {
		if err := accounts.EnsureAdmin(rootCtx, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword); err != nil {
			log.Error("admin seed failed", "err", err)
			os.Exit(1)
		}
		log.Info("admin account ensured", "email", cfg.Seed.AdminEmail)
	}

	ready := func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		if db != nil {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		}
		return nil
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	authMW := auth.RequireAccessToken(codec, func(err error) {
		m.RecordValidationFailure(auth.FailureReason(err))
	})
	registerRoutes(r, routeDeps{
		accounts: accounts,
		authMW:   authMW,
		ready:    ready,
		metrics:  m.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.App.Store, "alg", codec.Algorithm(), "access_ttl", codec.TTL().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
