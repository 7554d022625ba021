// syncer runs the periodic TNS bulk retrieval: on every TNS_SYNC_CRON tick it
// walks the robots configured for automatic reporting and imports everything
// TNS made public in the last day, sharing new sources with each robot's
// auto-report groups.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"transient-broker/backend/internal/config"
	"transient-broker/backend/internal/db"
	"transient-broker/backend/internal/notify"
	"transient-broker/backend/internal/security"
	"transient-broker/backend/internal/store"
	"transient-broker/backend/internal/tns"
	tnsservice "transient-broker/backend/internal/tns/service"
)

const lookback = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
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

	retrieval := tnsservice.NewRetrievalService(tnsservice.StoreDatabase{DB: database}, vault, client, notifier, logger)

	c := cron.New()
	_, err = c.AddFunc(cfg.SyncCron, func() {
		runSync(context.Background(), database, retrieval, logger)
	})
	if err != nil {
		logger.Fatal("cron spec", zap.String("spec", cfg.SyncCron), zap.Error(err))
	}
	c.Start()
	logger.Info("syncer started", zap.String("cron", cfg.SyncCron))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	<-c.Stop().Done()
	logger.Info("syncer stopped")
}

// runSync performs one sync pass over every auto-reporting robot. Robots fail
// independently; one bad credential set does not stop the others.
func runSync(ctx context.Context, database *store.DB, retrieval *tnsservice.RetrievalService, logger *zap.Logger) {
	sess, err := database.Begin(ctx)
	if err != nil {
		logger.Error("begin session", zap.Error(err))
		return
	}
	robots, err := sess.RobotsWithAutoReport(ctx)
	sess.Rollback(ctx)
	if err != nil {
		logger.Error("list auto-report robots", zap.Error(err))
		return
	}

	since := time.Now().UTC().Add(-lookback)
	for _, robot := range robots {
		res, err := retrieval.BulkRetrieve(ctx, 0, robot.ID, robot.AutoReportGroupIDs, since, true, true)
		if err != nil {
			logger.Error("bulk retrieval failed",
				zap.Int64("robot_id", robot.ID), zap.Error(err))
			continue
		}
		logger.Info("sync pass finished",
			zap.Int64("robot_id", robot.ID),
			zap.Int("processed", res.Processed),
			zap.Int("created", len(res.Created)),
			zap.Int("updated", len(res.Updated)),
			zap.Int("failed", len(res.Failed)))
	}
}
