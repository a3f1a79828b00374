package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// products belongs to the catalog service; it is created here only so a
// fresh database can boot. The ledger never writes to it.
var schema = []struct {
	name string
	ddl  string
}{
	{"products", `
CREATE TABLE IF NOT EXISTS products (
    product_id  BIGINT        NOT NULL AUTO_INCREMENT PRIMARY KEY,
    name        VARCHAR(150)  NOT NULL,
    sku         VARCHAR(50)   NOT NULL,
    description TEXT,
    price       DECIMAL(18,2) NOT NULL DEFAULT 0,
    is_active   TINYINT(1)    NOT NULL DEFAULT 1,
    created_at  DATETIME(6)   NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    KEY idx_products_sku (sku)
)`},
	{"inventory", `
CREATE TABLE IF NOT EXISTS inventory (
    product_id      BIGINT      NOT NULL PRIMARY KEY,
    quantity        BIGINT      NOT NULL DEFAULT 0,
    min_stock_level BIGINT      NOT NULL DEFAULT 5,
    last_updated    DATETIME(6) NOT NULL,
    CONSTRAINT chk_inventory_quantity CHECK (quantity >= 0),
    CONSTRAINT chk_inventory_min_level CHECK (min_stock_level >= 0),
    KEY idx_inventory_quantity (quantity)
)`},
	{"stock_transactions", `
CREATE TABLE IF NOT EXISTS stock_transactions (
    id         BIGINT          NOT NULL AUTO_INCREMENT PRIMARY KEY,
    product_id BIGINT          NOT NULL,
    direction  ENUM('IN','OUT') NOT NULL,
    quantity   BIGINT          NOT NULL,
    notes      VARCHAR(500)    NOT NULL DEFAULT '',
    created_at DATETIME(6)     NOT NULL,
    CONSTRAINT chk_transactions_quantity CHECK (quantity > 0),
    KEY idx_transactions_product_created (product_id, created_at),
    KEY idx_transactions_created (created_at)
)`},
}

// Migrate creates the ledger tables when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, table := range schema {
		if _, err := db.ExecContext(ctx, table.ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table.name, err)
		}
	}
	return nil
}
