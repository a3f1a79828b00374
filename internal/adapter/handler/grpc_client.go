package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// LedgerClient calls a remote ledger service. Errors come back as ledger
// errors, so domain.KindOf and errors.As work on them.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) StockIn(ctx context.Context, requestID string, productID, quantity int64, notes string) (domain.Transaction, error) {
	return c.movement(ctx, "StockIn", requestID, productID, quantity, notes)
}

func (c *LedgerClient) StockOut(ctx context.Context, requestID string, productID, quantity int64, notes string) (domain.Transaction, error) {
	return c.movement(ctx, "StockOut", requestID, productID, quantity, notes)
}

func (c *LedgerClient) GetStock(ctx context.Context, productID int64) (domain.Inventory, error) {
	out, err := c.invoke(ctx, "GetStock", map[string]any{"product_id": productID})
	if err != nil {
		return domain.Inventory{}, err
	}

	f := out.GetFields()
	return domain.Inventory{
		ProductID:     int64(f["product_id"].GetNumberValue()),
		Name:          f["name"].GetStringValue(),
		SKU:           f["sku"].GetStringValue(),
		Quantity:      int64(f["quantity"].GetNumberValue()),
		MinStockLevel: int64(f["min_stock_level"].GetNumberValue()),
		LastUpdated:   parseTime(f["last_updated"].GetStringValue()),
	}, nil
}

func (c *LedgerClient) movement(ctx context.Context, method, requestID string, productID, quantity int64, notes string) (domain.Transaction, error) {
	out, err := c.invoke(ctx, method, map[string]any{
		"request_id": requestID,
		"product_id": productID,
		"quantity":   quantity,
		"notes":      notes,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	f := out.GetFields()
	direction, err := domain.ParseDirection(f["direction"].GetStringValue())
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		ID:        int64(f["id"].GetNumberValue()),
		ProductID: int64(f["product_id"].GetNumberValue()),
		Direction: direction,
		Quantity:  int64(f["quantity"].GetNumberValue()),
		Notes:     f["notes"].GetStringValue(),
		CreatedAt: parseTime(f["created_at"].GetStringValue()),
	}, nil
}

func (c *LedgerClient) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+LedgerServiceName+"/"+method, in, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
