package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000

	// ER_DATA_OUT_OF_RANGE
	errOutOfRange = 1690
)

// recentLimit applies the default to a non-positive limit and caps the rest.
func recentLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultRecentLimit
	case limit > maxRecentLimit:
		return maxRecentLimit
	}
	return limit
}

func quantityOverflow(productID, current, quantity int64) error {
	return domain.InvalidInputError("stock in of %d would overflow product %d (on hand %d, max %d)",
		quantity, productID, current, int64(math.MaxInt64))
}

func isOutOfRange(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errOutOfRange
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) StockIn(ctx context.Context, productID, quantity int64, notes string, at time.Time) (domain.Transaction, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, min_stock_level, last_updated)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + ?, last_updated = ?`,
		productID, quantity, domain.DefaultMinStockLevel, at,
		quantity, at,
	)
	if isOutOfRange(err) {
		var current int64
		_ = tx.QueryRowContext(ctx, `SELECT quantity FROM inventory WHERE product_id = ?`, productID).Scan(&current)
		return domain.Transaction{}, quantityOverflow(productID, current, quantity)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("increment inventory: %w", err)
	}

	txn, err := appendTransaction(ctx, tx, domain.Transaction{
		ProductID: productID,
		Direction: domain.DirectionIn,
		Quantity:  quantity,
		Notes:     notes,
		CreatedAt: at,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return txn, nil
}

// StockOut relies on the conditional UPDATE for the availability check. The
// row lock it takes is held until commit, so the log append below is ordered
// with every other movement on the same product.
func (m *MySQLAdapter) StockOut(ctx context.Context, productID, quantity int64, notes string, at time.Time) (domain.Transaction, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - ?, last_updated = ?
		WHERE product_id = ? AND quantity >= ?`,
		quantity, at, productID, quantity,
	)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("decrement inventory: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		var available int64
		err := tx.QueryRowContext(ctx, `SELECT quantity FROM inventory WHERE product_id = ?`, productID).Scan(&available)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, fmt.Errorf("read quantity: %w", err)
		}
		return domain.Transaction{}, &domain.InsufficientStockError{
			ProductID: productID,
			Available: available,
			Requested: quantity,
		}
	}

	txn, err := appendTransaction(ctx, tx, domain.Transaction{
		ProductID: productID,
		Direction: domain.DirectionOut,
		Quantity:  quantity,
		Notes:     notes,
		CreatedAt: at,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return txn, nil
}

func appendTransaction(ctx context.Context, tx *sql.Tx, txn domain.Transaction) (domain.Transaction, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO stock_transactions (product_id, direction, quantity, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		txn.ProductID, string(txn.Direction), txn.Quantity, txn.Notes, txn.CreatedAt,
	)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	txn.ID = id
	return txn, nil
}

func (m *MySQLAdapter) SetMinStockLevel(ctx context.Context, productID, minLevel int64, at time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, min_stock_level, last_updated)
		VALUES (?, 0, ?, ?)
		ON DUPLICATE KEY UPDATE min_stock_level = ?`,
		productID, minLevel, at, minLevel,
	)
	if err != nil {
		return fmt.Errorf("update min stock level: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) EnsureInventory(ctx context.Context, productID int64, at time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, min_stock_level, last_updated)
		VALUES (?, 0, ?, ?)
		ON DUPLICATE KEY UPDATE product_id = product_id`,
		productID, domain.DefaultMinStockLevel, at,
	)
	if err != nil {
		return fmt.Errorf("ensure inventory: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, productID int64) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := m.db.QueryRowContext(ctx, `
		SELECT product_id, quantity, min_stock_level, last_updated
		FROM inventory WHERE product_id = ?`, productID,
	).Scan(&inv.ProductID, &inv.Quantity, &inv.MinStockLevel, &inv.LastUpdated)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &inv, nil
}

func (m *MySQLAdapter) ListInventory(ctx context.Context) ([]domain.Inventory, error) {
	return queryInventory(ctx, m.db, `
		SELECT product_id, quantity, min_stock_level, last_updated
		FROM inventory ORDER BY product_id`)
}

func (m *MySQLAdapter) ListLowStock(ctx context.Context) ([]domain.Inventory, error) {
	return queryInventory(ctx, m.db, `
		SELECT product_id, quantity, min_stock_level, last_updated
		FROM inventory
		WHERE quantity <= min_stock_level
		ORDER BY quantity ASC, product_id ASC`)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryInventory(ctx context.Context, q queryer, query string, args ...any) ([]domain.Inventory, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var list []domain.Inventory
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.ProductID, &inv.Quantity, &inv.MinStockLevel, &inv.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		list = append(list, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return list, nil
}

// Snapshot runs both reads in one REPEATABLE READ transaction so InnoDB
// serves them from the same consistent view.
func (m *MySQLAdapter) Snapshot(ctx context.Context) (domain.LedgerSnapshot, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	records, err := queryInventory(ctx, tx, `
		SELECT product_id, quantity, min_stock_level, last_updated
		FROM inventory ORDER BY product_id`)
	if err != nil {
		return domain.LedgerSnapshot{}, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT product_id,
		       SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END)
		FROM stock_transactions
		GROUP BY product_id`)
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("replay transactions: %w", err)
	}
	defer rows.Close()

	net := make(map[int64]int64)
	for rows.Next() {
		var productID, sum int64
		if err := rows.Scan(&productID, &sum); err != nil {
			return domain.LedgerSnapshot{}, fmt.Errorf("scan replay: %w", err)
		}
		net[productID] = sum
	}
	if err := rows.Err(); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("iterate replay: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("commit: %w", err)
	}
	return domain.LedgerSnapshot{Records: records, Net: net}, nil
}

func (m *MySQLAdapter) ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return m.queryTransactions(ctx, `
		SELECT id, product_id, direction, quantity, notes, created_at
		FROM stock_transactions
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, recentLimit(limit))
}

func (m *MySQLAdapter) ListByProduct(ctx context.Context, productID int64) ([]domain.Transaction, error) {
	return m.queryTransactions(ctx, `
		SELECT id, product_id, direction, quantity, notes, created_at
		FROM stock_transactions
		WHERE product_id = ?
		ORDER BY created_at DESC, id DESC`, productID)
}

func (m *MySQLAdapter) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	return m.queryTransactions(ctx, `
		SELECT id, product_id, direction, quantity, notes, created_at
		FROM stock_transactions
		WHERE created_at BETWEEN ? AND ?
		ORDER BY created_at DESC, id DESC`, from, to)
}

func (m *MySQLAdapter) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var list []domain.Transaction
	for rows.Next() {
		var (
			txn       domain.Transaction
			direction string
		)
		if err := rows.Scan(&txn.ID, &txn.ProductID, &direction, &txn.Quantity, &txn.Notes, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if txn.Direction, err = domain.ParseDirection(direction); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", txn.ID, err)
		}
		list = append(list, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return list, nil
}
