package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/publisher"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

// demoProducts back the memory driver, which has no catalog of its own.
var demoProducts = []domain.Product{
	{ID: 1, Name: "Demo Widget", SKU: "DEMO-1", UnitPrice: decimal.RequireFromString("2.50"), Active: true},
	{ID: 2, Name: "Demo Gadget", SKU: "DEMO-2", UnitPrice: decimal.RequireFromString("12.00"), Active: true},
	{ID: 3, Name: "Demo Sprocket", SKU: "DEMO-3", UnitPrice: decimal.RequireFromString("0.75"), Active: true},
}

type stores struct {
	inventory    port.InventoryRepository
	transactions port.TransactionRepository
	catalog      port.Catalog
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("invalid LOG_LEVEL: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to open storage: %v", err)
	}

	// Redis is optional; without it requests are not deduplicated
	var cache port.CacheRepository
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect redis: %v", err)
		}
		cache = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis")
	}

	pub, stopPublisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to set up publisher: %v", err)
	}

	// Initialize services
	ledger := service.NewLedgerService(st.inventory, st.catalog,
		service.WithLogger(logger),
		service.WithMovementQueue(cfg.MovementQueueSize),
	)
	guard := service.NewIdempotentLedger(ledger, cache, logger)
	history := service.NewHistoryService(st.transactions, st.catalog)
	reports := service.NewReportService(st.inventory, st.catalog)

	// Start publish workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.PublishWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.DispatchMovements(id, ledger.Movements(), pub, logger)
		}(i)
	}
	logger.Infof("started %d publish workers", cfg.PublishWorkers)

	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(ledger, guard, history, reports))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}

	go func() {
		logger.Infof("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Errorf("gRPC server error: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewHTTPHandler(ledger, guard, history, reports, logger).Router(),
	}

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown: %v", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// No movement can run now; drain the queue
	ledger.Close()
	wg.Wait()
	stopPublisher()
	logger.Info("workers stopped")

	if rdb != nil {
		rdb.Close()
	}
	st.close()
	logger.Info("connections closed")
}

func openStores(ctx context.Context, cfg config.Config, logger *logrus.Logger) (stores, error) {
	if cfg.StorageDriver == config.DriverMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		mem := storage.NewMemoryAdapter()
		return stores{
			inventory:    mem,
			transactions: mem,
			catalog:      storage.NewMemoryCatalog(demoProducts...),
			close:        func() {},
		}, nil
	}

	db, err := otelsql.Open("mysql", cfg.MySQLDSN, otelsql.WithDBSystem("mysql"))
	if err != nil {
		return stores{}, err
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQLConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return stores{}, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return stores{}, err
	}
	logger.Info("connected to mysql")

	mysql := storage.NewMySQLAdapter(db)
	return stores{
		inventory:    mysql,
		transactions: mysql,
		catalog:      storage.NewMySQLCatalog(db),
		close:        func() { closeDB(db, logger) },
	}, nil
}

func closeDB(db *sql.DB, logger *logrus.Logger) {
	if err := db.Close(); err != nil {
		logger.Errorf("close mysql: %v", err)
	}
}

// newPublisher returns the Pub/Sub publisher when a project is configured,
// and the log publisher otherwise.
func newPublisher(ctx context.Context, cfg config.Config, logger *logrus.Logger) (port.EventPublisher, func(), error) {
	if cfg.PubSubProjectID == "" {
		return publisher.NewLogPublisher(logger), func() {}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
	if err != nil {
		return nil, nil, err
	}
	topic, err := publisher.EnsureTopic(ctx, client, cfg.PubSubTopic)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Infof("publishing movements to %s/%s", cfg.PubSubProjectID, cfg.PubSubTopic)

	pub := publisher.NewPubSubPublisher(topic)
	return pub, func() {
		pub.Stop()
		client.Close()
	}, nil
}
