package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"instadash/internal/config"
	apphttp "instadash/internal/http"
	"instadash/internal/password"
	"instadash/internal/repository"
	"instadash/internal/repository/postgres"
	"instadash/internal/repository/sqlite"
	"instadash/internal/service"
	"instadash/internal/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	level, _ := logrus.ParseLevel(cfg.Log.Level)
	logger.SetLevel(level)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Env,
			AttachStacktrace: true,
		}); err != nil {
			logger.Fatalf("init sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, closeDB, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer closeDB()

	if err := accounts.Init(ctx); err != nil {
		logger.Fatalf("init account repository: %v", err)
	}

	authService := service.NewAuthService(
		accounts,
		password.NewHasher(password.DefaultParams),
		token.NewCodec(cfg.Auth.SecretKey, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute),
		logger,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	handler := apphttp.NewHandler(authService, logger, cfg.Server.APIPrefix, cfg.AllowedOrigins())
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func openAccounts(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.AccountRepository, func(), error) {
	if cfg.UsesPostgres() {
		pool, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres account store")
		return postgres.NewAccountRepository(pool), pool.Close, nil
	}

	db, err := sqlite.Open(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("using sqlite account store at %s", cfg.Database.URL)
	return sqlite.NewAccountRepository(db), closeQuietly(db, logger), nil
}

func closeQuietly(db *sql.DB, logger *logrus.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Warn(fmt.Errorf("close database: %w", err))
		}
	}
}
