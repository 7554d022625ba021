package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"transient-broker/backend/internal/config"
	"transient-broker/backend/internal/db"
	"transient-broker/backend/internal/notify"
	"transient-broker/backend/internal/security"
	"transient-broker/backend/internal/server"
	"transient-broker/backend/internal/store"
	"transient-broker/backend/internal/tasks"
	"transient-broker/backend/internal/tns"
	tnshandler "transient-broker/backend/internal/tns/handler"
	tnsservice "transient-broker/backend/internal/tns/service"
	robothandler "transient-broker/backend/internal/tnsrobot/handler"
	robotservice "transient-broker/backend/internal/tnsrobot/service"
)

const accessTokenTTL = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.Env)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer pool.Close()
	database := store.New(pool)

	enc, err := security.NewEncryptorFromString(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("credentials key", zap.Error(err))
	}
	vault := security.NewCredentialVault(enc)

	priv, pub, err := security.ParseKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		logger.Fatal("jwt keys", zap.Error(err))
	}
	tokens := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, accessTokenTTL)

	client, err := tns.NewClient(tns.ClientConfig{
		BaseURL:       cfg.TNSBaseURL,
		FetchTimeout:  cfg.FetchTimeout(),
		ReportTimeout: cfg.ReportTimeout(),
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("tns client", zap.Error(err))
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.RedisAddr != "" {
		notifier = notify.NewRedisNotifier(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), logger)
	}

	runner := tasks.New(cfg.TaskWorkers, cfg.TaskQueueSize, logger)

	retrieval := tnsservice.NewRetrievalService(tnsservice.StoreDatabase{DB: database}, vault, client, notifier, logger)
	submission := tnsservice.NewSubmissionService(tnsservice.StoreDatabase{DB: database}, vault, client, notifier, logger)
	robots := robotservice.NewRobotService(robotservice.StoreDatabase{DB: database}, vault, notifier, logger)

	router := server.NewRouter(server.Config{
		Logger: logger,
		Tokens: tokens,
		Users:  server.StoreUsers{DB: database},
		DB:     pool,
		Robots: robothandler.NewRobotHandler(robots, logger),
		TNS:    tnshandler.NewTNSHandler(retrieval, submission, runner, logger),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("task runner shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}
