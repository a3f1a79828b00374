package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func newMockAdapter(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMySQLAdapter(db), mock
}

func q(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func TestMockStockIn_Commits(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO inventory")).
		WithArgs(int64(1), int64(10), domain.DefaultMinStockLevel, at, int64(10), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO stock_transactions")).
		WithArgs(int64(1), "IN", int64(10), "delivery", at).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()

	txn, err := adapter.StockIn(context.Background(), 1, 10, "delivery", at)
	require.NoError(t, err)
	assert.Equal(t, int64(42), txn.ID)
	assert.Equal(t, domain.DirectionIn, txn.Direction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockStockIn_LogFailureRollsBack(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO inventory")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO stock_transactions")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := adapter.StockIn(context.Background(), 1, 10, "", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockStockIn_OutOfRange(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO inventory")).
		WillReturnError(&mysql.MySQLError{Number: 1690, Message: "BIGINT value is out of range"})
	mock.ExpectQuery(q("SELECT quantity FROM inventory WHERE product_id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(int64(9)))
	mock.ExpectRollback()

	_, err := adapter.StockIn(context.Background(), 1, 9223372036854775807, "", time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "on hand 9")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockStockOut_Commits(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE inventory")).
		WithArgs(int64(3), sqlmock.AnyArg(), int64(1), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO stock_transactions")).
		WithArgs(int64(1), "OUT", int64(3), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	txn, err := adapter.StockOut(context.Background(), 1, 3, "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), txn.ID)
	assert.Equal(t, domain.DirectionOut, txn.Direction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockStockOut_Insufficient(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE inventory")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT quantity FROM inventory WHERE product_id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(int64(5)))
	mock.ExpectRollback()

	_, err := adapter.StockOut(context.Background(), 1, 6, "", time.Now())

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(5), insufficient.Available)
	assert.Equal(t, int64(6), insufficient.Requested)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockStockOut_NoRecord(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE inventory")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT quantity FROM inventory")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := adapter.StockOut(context.Background(), 9, 1, "", time.Now())

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Zero(t, insufficient.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockGetInventory_Missing(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(q("FROM inventory WHERE product_id = ?")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "min_stock_level", "last_updated"}))

	inv, err := adapter.GetInventory(context.Background(), 4)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestMockSnapshot(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM inventory ORDER BY product_id")).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "min_stock_level", "last_updated"}).
			AddRow(int64(1), int64(4), int64(5), now).
			AddRow(int64(2), int64(3), int64(5), now))
	mock.ExpectQuery(q("FROM stock_transactions")).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "net"}).
			AddRow(int64(1), int64(4)).
			AddRow(int64(2), int64(1)))
	mock.ExpectCommit()

	snap, err := adapter.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Drift{{ProductID: 2, StoredQuantity: 3, LedgerQuantity: 1}}, snap.Drifts())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockListRecent_CapsLimit(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	mock.ExpectQuery(q("LIMIT ?")).
		WithArgs(maxRecentLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "direction", "quantity", "notes", "created_at"}).
			AddRow(int64(2), int64(1), "OUT", int64(1), "", now).
			AddRow(int64(1), int64(1), "IN", int64(5), "first", now))

	list, err := adapter.ListRecent(context.Background(), 5000)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.DirectionOut, list[0].Direction)
	assert.Equal(t, "first", list[1].Notes)
}

func TestMockListRecent_DefaultLimit(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(q("LIMIT ?")).
		WithArgs(defaultRecentLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "direction", "quantity", "notes", "created_at"}))

	_, err := adapter.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockCatalog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	catalog := NewMySQLCatalog(db)
	ctx := context.Background()

	mock.ExpectQuery(q("SELECT price FROM products")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow("2.50"))
	price, err := catalog.UnitPrice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2.5", price.String())

	mock.ExpectQuery(q("SELECT 1 FROM products")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	ok, err := catalog.Exists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(q("SELECT name, sku FROM products")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "sku"}))
	_, err = catalog.DisplayInfo(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

// setupProduct resets product id to the given quantity with no history.
func setupProduct(t *testing.T, db *sql.DB, productID, quantity int64) {
	ctx := context.Background()
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO products (product_id, name, sku, price) VALUES (?, ?, ?, 1.00)
		  ON DUPLICATE KEY UPDATE is_active = 1`, []any{productID, "test product", "TEST"}},
		{`DELETE FROM stock_transactions WHERE product_id = ?`, []any{productID}},
		{`DELETE FROM inventory WHERE product_id = ?`, []any{productID}},
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.query, s.args...); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}
	if quantity > 0 {
		if _, err := NewMySQLAdapter(db).StockIn(ctx, productID, quantity, "setup", time.Now().UTC()); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}
}

func TestStockOut_Insufficient(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	setupProduct(t, db, 900001, 5)

	_, err := adapter.StockOut(ctx, 900001, 6, "", time.Now().UTC())
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	inv, err := adapter.GetInventory(ctx, 900001)
	if err != nil {
		t.Fatalf("get inventory failed: %v", err)
	}
	if inv.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", inv.Quantity)
	}

	history, err := adapter.ListByProduct(ctx, 900001)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected only the setup transaction, got %d", len(history))
	}
}

func TestStockOut_ConcurrentNoOversell(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	setupProduct(t, db, 900002, 20)

	var (
		wg           sync.WaitGroup
		successCount atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := adapter.StockOut(ctx, 900002, 1, "", time.Now().UTC()); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 20 {
		t.Errorf("expected 20 successful stock outs, got %d", successCount.Load())
	}

	snap, err := adapter.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	for _, d := range snap.Drifts() {
		if d.ProductID == 900002 {
			t.Errorf("unexpected drift: %+v", d)
		}
	}
}
