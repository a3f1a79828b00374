package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type movements interface {
	StockIn(ctx context.Context, requestID string, productID, quantity int64, notes string) (domain.Transaction, error)
	StockOut(ctx context.Context, requestID string, productID, quantity int64, notes string) (domain.Transaction, error)
	GetStock(ctx context.Context, productID int64) (domain.Inventory, error)
}

// inProcess runs the engine on the memory store.
type inProcess struct {
	*service.IdempotentLedger
	ledger *service.LedgerService
}

func (p inProcess) GetStock(ctx context.Context, productID int64) (domain.Inventory, error) {
	return p.ledger.GetStock(ctx, productID)
}

func main() {
	addr := flag.String("addr", "", "gRPC address of a running ledger; empty runs in process")
	productID := flag.Int64("product", 1, "product to drain")
	initialStock := flag.Int64("stock", 20, "units to stock in before the run")
	totalRequests := flag.Int("requests", 50, "concurrent stock-out requests of one unit")
	flag.Parse()

	ctx := context.Background()

	var target movements
	if *addr == "" {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		store := storage.NewMemoryAdapter()
		catalog := storage.NewMemoryCatalog(domain.Product{
			ID: *productID, Name: "stress item", SKU: "STRESS", UnitPrice: decimal.NewFromInt(1), Active: true,
		})
		ledger := service.NewLedgerService(store, catalog, service.WithLogger(logger))
		target = inProcess{IdempotentLedger: service.NewIdempotentLedger(ledger, nil, logger), ledger: ledger}
	} else {
		conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logrus.Fatalf("failed to dial %s: %v", *addr, err)
		}
		defer conn.Close()
		target = handler.NewLedgerClient(conn)
	}

	before, err := target.GetStock(ctx, *productID)
	if err != nil {
		logrus.Fatalf("failed to read stock: %v", err)
	}
	if _, err := target.StockIn(ctx, uuid.NewString(), *productID, *initialStock, "stress test setup"); err != nil {
		logrus.Fatalf("failed to stock in: %v", err)
	}
	available := before.Quantity + *initialStock

	// Counters
	var successCount, insufficientCount, otherCount atomic.Int64

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := target.StockOut(ctx, uuid.NewString(), *productID, 1, "stress test")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	after, err := target.GetStock(ctx, *productID)
	if err != nil {
		logrus.Fatalf("failed to read stock: %v", err)
	}

	success := successCount.Load()
	expected := min(available, int64(*totalRequests))

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Available Stock:  %d\n", available)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Insufficient:     %d\n", insufficientCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Final Stock:      %d\n", after.Quantity)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success != expected {
		fmt.Printf("FAIL: expected %d successful stock outs, got %d\n", expected, success)
		failed = true
	}
	if after.Quantity != available-success {
		fmt.Printf("FAIL: expected final stock %d, got %d\n", available-success, after.Quantity)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("PASS: no oversell, stock matches successful movements")
}
