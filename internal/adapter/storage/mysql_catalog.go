package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// MySQLCatalog reads the catalog's products table. Inactive rows are
// treated as missing.
type MySQLCatalog struct {
	db *sql.DB
}

func NewMySQLCatalog(db *sql.DB) *MySQLCatalog {
	return &MySQLCatalog{db: db}
}

func (c *MySQLCatalog) Exists(ctx context.Context, productID int64) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `
		SELECT 1 FROM products WHERE product_id = ? AND is_active = 1`, productID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query product: %w", err)
	}
	return true, nil
}

func (c *MySQLCatalog) UnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := c.db.QueryRowContext(ctx, `
		SELECT price FROM products WHERE product_id = ? AND is_active = 1`, productID,
	).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, domain.NotFoundError(productID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query price: %w", err)
	}
	return price, nil
}

func (c *MySQLCatalog) DisplayInfo(ctx context.Context, productID int64) (domain.DisplayInfo, error) {
	var info domain.DisplayInfo
	err := c.db.QueryRowContext(ctx, `
		SELECT name, sku FROM products WHERE product_id = ? AND is_active = 1`, productID,
	).Scan(&info.Name, &info.SKU)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DisplayInfo{}, domain.NotFoundError(productID)
	}
	if err != nil {
		return domain.DisplayInfo{}, fmt.Errorf("query product: %w", err)
	}
	return info, nil
}

func (c *MySQLCatalog) ListActive(ctx context.Context) ([]domain.Product, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT product_id, name, sku, price
		FROM products
		WHERE is_active = 1
		ORDER BY name, product_id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var list []domain.Product
	for rows.Next() {
		p := domain.Product{Active: true}
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return list, nil
}
