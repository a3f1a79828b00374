package main

import (
	"context"
	"errors"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

// reconcile replays the transaction log against the inventory table and
// exits 1 when any product drifted, 2 when the check could not run.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("invalid LOG_LEVEL: %v", err)
	}
	if cfg.StorageDriver != config.DriverMySQL {
		logger.Fatal("reconcile needs STORAGE_DRIVER=mysql")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := otelsql.Open("mysql", cfg.MySQLDSN, otelsql.WithDBSystem("mysql"))
	if err != nil {
		logger.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("failed to ping mysql: %v", err)
	}

	var locker port.Locker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect redis: %v", err)
		}
		locker = storage.NewRedisAdapter(rdb)
	}

	drifts, err := service.NewReconcileService(storage.NewMySQLAdapter(db), locker, logger).Run(ctx)
	if errors.Is(err, service.ErrReconcileRunning) {
		logger.Warn("another reconciliation is running")
		return
	}
	if err != nil {
		logger.Errorf("reconciliation failed: %v", err)
		os.Exit(2)
	}
	if len(drifts) > 0 {
		os.Exit(1)
	}
}
