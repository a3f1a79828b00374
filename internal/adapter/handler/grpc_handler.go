package handler

import (
	"context"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

// LedgerServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct messages with snake_case keys.
const LedgerServiceName = "stockledger.v1.Ledger"

type LedgerServer interface {
	StockIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StockOut(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetMinThreshold(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListLowStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Summarize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type ledgerMethod func(LedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call ledgerMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + LedgerServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("StockIn", LedgerServer.StockIn),
		unaryHandler("StockOut", LedgerServer.StockOut),
		unaryHandler("SetMinThreshold", LedgerServer.SetMinThreshold),
		unaryHandler("GetStock", LedgerServer.GetStock),
		unaryHandler("ListLowStock", LedgerServer.ListLowStock),
		unaryHandler("Summarize", LedgerServer.Summarize),
		unaryHandler("ListTransactions", LedgerServer.ListTransactions),
	},
	Metadata: "stockledger/v1/ledger.proto",
}

// NewGRPCServer registers the ledger service and a health service that
// reports SERVING.
func NewGRPCServer(h LedgerServer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	s.RegisterService(&LedgerServiceDesc, h)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(LedgerServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return s
}

type GRPCHandler struct {
	ledger  *service.LedgerService
	guard   *service.IdempotentLedger
	history *service.HistoryService
	reports *service.ReportService
}

func NewGRPCHandler(
	ledger *service.LedgerService,
	guard *service.IdempotentLedger,
	history *service.HistoryService,
	reports *service.ReportService,
) *GRPCHandler {
	return &GRPCHandler{ledger: ledger, guard: guard, history: history, reports: reports}
}

func (h *GRPCHandler) StockIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.movement(ctx, req, h.guard.StockIn)
}

func (h *GRPCHandler) StockOut(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.movement(ctx, req, h.guard.StockOut)
}

func (h *GRPCHandler) movement(ctx context.Context, req *structpb.Struct, apply movementFunc) (*structpb.Struct, error) {
	productID, err := intField(req, "product_id")
	if err != nil {
		return nil, toStatus(err)
	}
	quantity, err := intField(req, "quantity")
	if err != nil {
		return nil, toStatus(err)
	}

	txn, err := apply(ctx, stringField(req, "request_id"), productID, quantity, stringField(req, "notes"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(transactionFields(txn))
}

func (h *GRPCHandler) SetMinThreshold(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, err := intField(req, "product_id")
	if err != nil {
		return nil, toStatus(err)
	}
	minLevel, err := intField(req, "min_stock_level")
	if err != nil {
		return nil, toStatus(err)
	}

	if err := h.ledger.SetMinThreshold(ctx, productID, minLevel); err != nil {
		return nil, toStatus(err)
	}
	return h.GetStock(ctx, req)
}

func (h *GRPCHandler) GetStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, err := intField(req, "product_id")
	if err != nil {
		return nil, toStatus(err)
	}

	inv, err := h.ledger.GetStock(ctx, productID)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(inventoryFields(inv))
}

func (h *GRPCHandler) ListLowStock(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := h.reports.ListLowStock(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]any, 0, len(list))
	for _, inv := range list {
		items = append(items, inventoryFields(inv))
	}
	return newStruct(map[string]any{"items": items})
}

func (h *GRPCHandler) Summarize(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	summary, err := h.reports.Summarize(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		"total_active_products": summary.TotalActiveProducts,
		"total_units":           summary.TotalUnits,
		"total_value":           summary.TotalValue.StringFixed(2),
	})
}

// ListTransactions takes product_id, or from and to (RFC 3339 or
// YYYY-MM-DD), or an optional limit, in that order of precedence.
func (h *GRPCHandler) ListTransactions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var (
		list []domain.Transaction
		err  error
	)

	fields := req.GetFields()
	switch {
	case fields["product_id"] != nil:
		var productID int64
		if productID, err = intField(req, "product_id"); err != nil {
			return nil, toStatus(err)
		}
		list, err = h.history.ByProduct(ctx, productID)
	case fields["from"] != nil || fields["to"] != nil:
		var from, to time.Time
		if from, err = parseDate("from", stringField(req, "from")); err != nil {
			return nil, toStatus(err)
		}
		if to, err = parseDate("to", stringField(req, "to")); err != nil {
			return nil, toStatus(err)
		}
		list, err = h.history.ByDateRange(ctx, from, to)
	default:
		var limit int64
		if fields["limit"] != nil {
			if limit, err = intField(req, "limit"); err != nil {
				return nil, toStatus(err)
			}
		}
		list, err = h.history.Recent(ctx, int(limit))
	}
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]any, 0, len(list))
	for _, txn := range list {
		items = append(items, transactionFields(txn))
	}
	return newStruct(map[string]any{"items": items})
}

func intField(req *structpb.Struct, key string) (int64, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, domain.InvalidInputError("%s is required", key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, domain.InvalidInputError("%s must be a number", key)
	}
	if n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		return 0, domain.InvalidInputError("%s must be a whole number, got %v", key, n.NumberValue)
	}
	return int64(n.NumberValue), nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, toStatus(fmt.Errorf("encode response: %w", err))
	}
	return s, nil
}

func inventoryFields(inv domain.Inventory) map[string]any {
	return map[string]any{
		"product_id":      inv.ProductID,
		"name":            inv.Name,
		"sku":             inv.SKU,
		"quantity":        inv.Quantity,
		"min_stock_level": inv.MinStockLevel,
		"status":          inv.Status(),
		"last_updated":    formatTime(inv.LastUpdated),
	}
}

func transactionFields(txn domain.Transaction) map[string]any {
	return map[string]any{
		"id":           txn.ID,
		"product_id":   txn.ProductID,
		"product_name": txn.ProductName,
		"direction":    string(txn.Direction),
		"quantity":     txn.Quantity,
		"notes":        txn.Notes,
		"created_at":   formatTime(txn.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
