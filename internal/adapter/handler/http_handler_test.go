package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type services struct {
	ledger  *service.LedgerService
	guard   *service.IdempotentLedger
	history *service.HistoryService
	reports *service.ReportService
}

// idempotencyCache is an in-process CacheRepository.
type idempotencyCache struct {
	keys map[string]bool
}

func (c *idempotencyCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *idempotencyCache) ReleaseIdempotency(_ context.Context, key string) error {
	delete(c.keys, key)
	return nil
}

func newServices(t *testing.T) services {
	t.Helper()

	logger, _ := test.NewNullLogger()
	store := storage.NewMemoryAdapter()
	catalog := storage.NewMemoryCatalog(
		domain.Product{ID: 1, Name: "Widget", SKU: "WID-1", UnitPrice: decimal.RequireFromString("2.00"), Active: true},
		domain.Product{ID: 2, Name: "Gadget", SKU: "GAD-1", UnitPrice: decimal.RequireFromString("5.00"), Active: true},
	)
	ledger := service.NewLedgerService(store, catalog, service.WithLogger(logger))
	return services{
		ledger:  ledger,
		guard:   service.NewIdempotentLedger(ledger, &idempotencyCache{keys: make(map[string]bool)}, logger),
		history: service.NewHistoryService(store, catalog),
		reports: service.NewReportService(store, catalog),
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	s := newServices(t)
	logger, _ := test.NewNullLogger()
	return NewHTTPHandler(s.ledger, s.guard, s.history, s.reports, logger).Router()
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("x-correlation-id"))
}

func TestStockInOut(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/stock/in", gin.H{"product_id": 1, "quantity": 10, "notes": "delivery"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	txn := decode[TransactionHTTPResponse](t, w)
	assert.Equal(t, "IN", txn.Direction)
	assert.Equal(t, int64(10), txn.Quantity)

	w = do(t, r, http.MethodPost, "/api/stock/out", gin.H{"product_id": 1, "quantity": 4})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/inventory/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	inv := decode[InventoryHTTPResponse](t, w)
	assert.Equal(t, int64(6), inv.Quantity)
	assert.Equal(t, "ok", inv.Status)
}

func TestStockOut_Insufficient(t *testing.T) {
	r := newTestRouter(t)

	do(t, r, http.MethodPost, "/api/stock/in", gin.H{"product_id": 1, "quantity": 5})
	w := do(t, r, http.MethodPost, "/api/stock/out", gin.H{"product_id": 1, "quantity": 6})

	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, domain.KindInsufficientStock, resp.Kind)
	require.NotNil(t, resp.Available)
	assert.Equal(t, int64(5), *resp.Available)
	assert.Equal(t, int64(6), resp.Requested)
	assert.False(t, resp.Retryable)
}

func TestStockIn_Errors(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/stock/in", gin.H{"product_id": 99, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/stock/in", gin.H{"product_id": 1, "quantity": -2})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "gt", resp.Fields["quantity"])

	w = do(t, r, http.MethodPost, "/api/stock/in", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStockIn_DuplicateRequest(t *testing.T) {
	r := newTestRouter(t)
	body := gin.H{"request_id": "abc", "product_id": 1, "quantity": 3}

	w := do(t, r, http.MethodPost, "/api/stock/in", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodPost, "/api/stock/in", body)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.KindDuplicateRequest, decode[ErrorResponse](t, w).Kind)

	w = do(t, r, http.MethodGet, "/api/inventory/1", nil)
	assert.Equal(t, int64(3), decode[InventoryHTTPResponse](t, w).Quantity)
}

func TestSetThreshold(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPut, "/api/inventory/1/threshold", gin.H{"min_stock_level": 20})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	inv := decode[InventoryHTTPResponse](t, w)
	assert.Equal(t, int64(20), inv.MinStockLevel)
	assert.Equal(t, "out_of_stock", inv.Status)

	w = do(t, r, http.MethodPut, "/api/inventory/1/threshold", gin.H{"min_stock_level": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPut, "/api/inventory/1/threshold", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPut, "/api/inventory/abc/threshold", gin.H{"min_stock_level": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReports(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/stock/in", gin.H{"product_id": 1, "quantity": 10})

	w := do(t, r, http.MethodGet, "/api/reports/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[map[string]any](t, w)
	assert.Equal(t, float64(2), summary["total_active_products"])
	assert.Equal(t, float64(10), summary["total_units"])
	assert.Equal(t, "20.00", summary["total_value"])

	w = do(t, r, http.MethodGet, "/api/reports/low-stock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]InventoryHTTPResponse](t, w))

	w = do(t, r, http.MethodGet, "/api/inventory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]InventoryHTTPResponse](t, w), 2)
}

func TestTransactions(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/stock/in", gin.H{"product_id": 1, "quantity": 10})
	do(t, r, http.MethodPost, "/api/stock/in", gin.H{"product_id": 2, "quantity": 1})

	w := do(t, r, http.MethodGet, "/api/transactions?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]TransactionHTTPResponse](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "Gadget", list[0].ProductName)

	w = do(t, r, http.MethodGet, "/api/products/1/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]TransactionHTTPResponse](t, w), 1)

	w = do(t, r, http.MethodGet, "/api/transactions?from=2000-01-01&to=2999-12-31", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]TransactionHTTPResponse](t, w), 2)

	w = do(t, r, http.MethodGet, "/api/transactions?from=2026-02-01&to=2026-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/transactions?from=2026-02-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/transactions?limit=lots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
