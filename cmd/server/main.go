package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/planwise/backend/internal/auth"
	"github.com/planwise/backend/internal/authz"
	"github.com/planwise/backend/internal/config"
	"github.com/planwise/backend/internal/health"
	"github.com/planwise/backend/internal/logger"
	"github.com/planwise/backend/internal/metrics"
	authmw "github.com/planwise/backend/internal/middleware"
	"github.com/planwise/backend/internal/ratelimit"
	"github.com/planwise/backend/internal/repository"
	"github.com/planwise/backend/internal/store"
	"github.com/planwise/backend/internal/users"
)

// Version is set at build time
var Version = "dev"

const storeSweepInterval = 10 * time.Minute

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Postgres backs the user and usage repositories
	dbPool, err := setupDatabase(cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	sqlxDB, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to open sqlx connection", "error", err)
		os.Exit(1)
	}
	defer sqlxDB.Close()

	// Redis is optional: with it, revocations and rate limits are shared
	// across replicas; without it, everything runs in process memory.
	redisClient := setupRedis(cfg, log)

	var sharedStore store.Store
	if redisClient != nil {
		sharedStore = store.NewRedisStore(redisClient, "planwise")
	} else {
		sharedStore = store.NewMemoryStore()
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go store.RunSweeper(sweepCtx, sharedStore, storeSweepInterval, log)

	// Rate limiters: the low-volume auth limiters go distributed when
	// Redis is available; the api and global limiters stay in memory.
	limiters := buildLimiters(redisClient, log)
	defer limiters.Close()

	// Auth services
	blacklist := auth.NewBlacklist(sharedStore, log)
	tokenService, err := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:        cfg.JWT.Secret,
		Salt:          cfg.JWT.Salt,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessExpiry:  cfg.JWT.AccessExpiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
		SessionExpiry: cfg.JWT.SessionExpiry,
		Production:    cfg.IsProduction(),
	}, blacklist, log)
	if err != nil {
		log.Error("failed to create token service", "error", err)
		os.Exit(1)
	}

	accounts, err := auth.NewAccountStore()
	if err != nil {
		log.Error("failed to build account store", "error", err)
		os.Exit(1)
	}

	authService := auth.NewService(
		tokenService,
		auth.NewSessionRegistry(sharedStore, log),
		auth.NewLockoutTracker(sharedStore, log),
		accounts,
		limiters,
		log,
	)
	authHandler := auth.NewHandler(authService, cfg.IsProduction())

	// Authorization
	userRepo := repository.NewUserRepository(dbPool)
	usersHandler := users.NewHandler(userRepo, log)
	usageRepo := repository.NewUsageRepository(sqlxDB)
	usageChecker := authz.NewUsageChecker(usageRepo, log)
	authMiddleware := authmw.NewAuthMiddleware(authService, usageChecker)

	// Observability
	healthHandler := health.NewHandler(health.Config{
		DBPool:      dbPool,
		RedisClient: redisClient,
		Version:     Version,
	})

	dbStats := metrics.NewDBStatsCollector(dbPool, sqlxDB, log)
	dbStats.Start(30 * time.Second)
	defer dbStats.Stop()

	// Router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(authmw.StructuredLogger(log))
	r.Use(metrics.Middleware)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://planwise.app", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", auth.DemoUserHeader, auth.DemoTokenHeader},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authmw.RateLimit("global", limiters.Global, ratelimit.GlobalLimit))
		r.Use(authmw.RateLimit("api", limiters.API, ratelimit.APILimit))

		auth.RegisterRoutes(r, authHandler, authMiddleware.Authenticate)
		users.RegisterRoutes(r, usersHandler,
			authMiddleware.Authenticate,
			authMiddleware.RequirePermission("admin:users"))
	})

	// Server with graceful shutdown
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr, "env", cfg.Env, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to database",
		"db", cfg.Database.DBName,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port)
	return pool, nil
}

// setupRedis connects to Redis if it is reachable. An unreachable Redis
// downgrades the service to per-instance stores rather than failing
// startup.
func setupRedis(cfg *config.Config, log *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, falling back to in-memory stores",
			"addr", cfg.Redis.Addr, "error", err)
		client.Close()
		return nil
	}

	log.Info("connected to redis", "addr", cfg.Redis.Addr)
	return client
}

// buildLimiters assembles the standard limiter set, promoting the auth
// limiters to Redis-backed instances when a client is available.
func buildLimiters(redisClient *redis.Client, log *slog.Logger) *ratelimit.Set {
	if redisClient == nil {
		return ratelimit.NewSet()
	}

	return &ratelimit.Set{
		Login:         ratelimit.NewRedisLimiter(redisClient, "rl:login", ratelimit.LoginLimit, ratelimit.LoginWindow, log),
		Registration:  ratelimit.NewRedisLimiter(redisClient, "rl:registration", ratelimit.RegistrationLimit, ratelimit.RegistrationWindow, log),
		PasswordReset: ratelimit.NewRedisLimiter(redisClient, "rl:password-reset", ratelimit.PasswordResetLimit, ratelimit.PasswordResetWindow, log),
		API:           ratelimit.NewSlidingLimiter(ratelimit.APILimit, ratelimit.APIWindow),
		Global:        ratelimit.NewSlidingLimiter(ratelimit.GlobalLimit, ratelimit.GlobalWindow),
	}
}
