// Package main initializes and starts the MindEase API server,
// setting up configuration, logging, the database, session storage,
// services, handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atinyakov/mindease/internal/config"
	"github.com/atinyakov/mindease/internal/crypto"
	"github.com/atinyakov/mindease/internal/db"
	"github.com/atinyakov/mindease/internal/logger"
	"github.com/atinyakov/mindease/internal/middleware"
	"github.com/atinyakov/mindease/internal/repository"
	apihttp "github.com/atinyakov/mindease/internal/server/handler/http"
	"github.com/atinyakov/mindease/internal/service"
	"github.com/atinyakov/mindease/internal/session"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const (
	sessionCleanInterval = 10 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	// Parse .env, command-line, config file and environment configuration.
	options, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, zapLogger); err != nil {
		zapLogger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, options *config.Options, zapLogger *zap.Logger) error {
	// Initialize the database and bring the schema up to date.
	conn, err := db.Open(ctx, options.DatabaseDriver, options.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("cannot init database: %w", err)
	}
	defer conn.Close()

	var userRepo *repository.UserRepository
	if options.DatabaseDriver == db.DriverPostgres {
		userRepo = repository.NewPostgresUserRepository(conn)
	} else {
		userRepo = repository.NewSQLiteUserRepository(conn)
	}

	var redisClient *redis.Client
	if options.RedisAddr != "" {
		redisClient, err = db.OpenRedis(ctx, options.RedisAddr, options.RedisPassword, options.RedisDB)
		if err != nil {
			return fmt.Errorf("cannot connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	store := newSessionStore(ctx, options, conn, redisClient, zapLogger)
	sessions := session.NewManager(store, options.SessionTTL, session.CookieOptions{
		Name:   options.CookieName,
		Secure: options.CookieSecure,
	})

	var limiter middleware.RateLimiter
	if redisClient != nil {
		limiter = middleware.NewRedisRateLimiter(redisClient, zapLogger)
	} else {
		limiter = middleware.NewMemoryRateLimiter()
	}
	defer limiter.Close()

	hasher := crypto.NewHasher(options.BcryptCost, options.HashConcurrency)
	authService := service.NewAuthService(userRepo, hasher, zapLogger)

	authHandler := &apihttp.AuthHandler{AuthService: authService, Sessions: sessions, Logger: zapLogger}
	healthHandler := &apihttp.HealthHandler{DB: conn, Started: time.Now()}

	router := apihttp.NewRouter(authHandler, healthHandler, zapLogger, apihttp.RouterOptions{
		Sessions:        sessions,
		Metrics:         middleware.NewMetrics(),
		Limiter:         limiter,
		RateLimitSignup: options.RateLimitSignup,
		RateLimitLogin:  options.RateLimitLogin,
		CORSOrigins:     options.CORSOrigins,
	})

	server := &http.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if options.TLSCert != "" {
			zapLogger.Info("starting HTTPS server", zap.String("addr", options.Addr))
			errCh <- server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
			return
		}
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zapLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newSessionStore(ctx context.Context, options *config.Options, conn *sqlx.DB, redisClient *redis.Client, zapLogger *zap.Logger) session.Store {
	switch options.SessionBackend {
	case config.SessionsRedis:
		return session.NewRedisStore(redisClient, "")
	case config.SessionsMemory:
		store := session.NewMemoryStore()
		db.StartSessionCleaner(ctx, store, sessionCleanInterval, zapLogger)
		return store
	default:
		var store *session.SQLStore
		if options.DatabaseDriver == db.DriverPostgres {
			store = session.NewPostgresStore(conn)
		} else {
			store = session.NewSQLiteStore(conn)
		}
		db.StartSessionCleaner(ctx, store, sessionCleanInterval, zapLogger)
		return store
	}
}
