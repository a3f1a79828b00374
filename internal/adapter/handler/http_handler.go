package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const dateLayout = "2006-01-02"

type HTTPHandler struct {
	ledger   *service.LedgerService
	guard    *service.IdempotentLedger
	history  *service.HistoryService
	reports  *service.ReportService
	validate *validator.Validate
	logger   logrus.FieldLogger
}

type MovementHTTPRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,max=64"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Notes     string `json:"notes" validate:"max=500"`
}

type ThresholdHTTPRequest struct {
	MinStockLevel *int64 `json:"min_stock_level" validate:"required,gte=0"`
}

type InventoryHTTPResponse struct {
	ProductID     int64     `json:"product_id"`
	Name          string    `json:"name,omitempty"`
	SKU           string    `json:"sku,omitempty"`
	Quantity      int64     `json:"quantity"`
	MinStockLevel int64     `json:"min_stock_level"`
	Status        string    `json:"status"`
	LastUpdated   time.Time `json:"last_updated"`
}

type TransactionHTTPResponse struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Direction   string    `json:"direction"`
	Quantity    int64     `json:"quantity"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewHTTPHandler(
	ledger *service.LedgerService,
	guard *service.IdempotentLedger,
	history *service.HistoryService,
	reports *service.ReportService,
	logger logrus.FieldLogger,
) *HTTPHandler {
	return &HTTPHandler{
		ledger:   ledger,
		guard:    guard,
		history:  history,
		reports:  reports,
		validate: newValidator(),
		logger:   logger,
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Router builds the gin engine with every ledger route mounted.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(correlationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders("x-correlation-id")
	r.Use(cors.New(corsConfig))
	r.Use(errorLogger(h.logger))
	r.Use(gin.Recovery())

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/stock/in", h.StockIn)
	api.POST("/stock/out", h.StockOut)
	api.GET("/inventory", h.ListInventory)
	api.GET("/inventory/:product_id", h.GetInventory)
	api.PUT("/inventory/:product_id/threshold", h.SetThreshold)
	api.GET("/reports/low-stock", h.LowStock)
	api.GET("/reports/summary", h.Summary)
	api.GET("/transactions", h.ListTransactions)
	api.GET("/products/:product_id/transactions", h.ProductTransactions)
	return r
}

func correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Set("correlationId", cid)
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}

// errorLogger logs only requests that recorded an error
func errorLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.WithFields(logrus.Fields{
				"module":        "http",
				"path":          c.FullPath(),
				"status":        c.Writer.Status(),
				"correlationId": c.GetString("correlationId"),
			}).Error(c.Errors.String())
		}
	}
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) StockIn(c *gin.Context) {
	h.movement(c, h.guard.StockIn)
}

func (h *HTTPHandler) StockOut(c *gin.Context) {
	h.movement(c, h.guard.StockOut)
}

type movementFunc func(ctx context.Context, requestID string, productID, quantity int64, notes string) (domain.Transaction, error)

func (h *HTTPHandler) movement(c *gin.Context, apply movementFunc) {
	var req MovementHTTPRequest
	if !h.bind(c, &req) {
		return
	}

	txn, err := apply(c.Request.Context(), req.RequestID, req.ProductID, req.Quantity, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTransactionResponse(txn))
}

func (h *HTTPHandler) SetThreshold(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req ThresholdHTTPRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.ledger.SetMinThreshold(c.Request.Context(), productID, *req.MinStockLevel); err != nil {
		writeError(c, err)
		return
	}
	h.GetInventory(c)
}

func (h *HTTPHandler) GetInventory(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	inv, err := h.ledger.GetStock(c.Request.Context(), productID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInventoryResponse(inv))
}

func (h *HTTPHandler) ListInventory(c *gin.Context) {
	list, err := h.reports.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInventoryList(list))
}

func (h *HTTPHandler) LowStock(c *gin.Context) {
	list, err := h.reports.ListLowStock(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInventoryList(list))
}

func (h *HTTPHandler) Summary(c *gin.Context) {
	summary, err := h.reports.Summarize(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_active_products": summary.TotalActiveProducts,
		"total_units":           summary.TotalUnits,
		"total_value":           summary.TotalValue.StringFixed(2),
	})
}

// ListTransactions serves ?limit=N for the newest entries or ?from=&to= for
// a date range. Dates are YYYY-MM-DD or RFC 3339.
func (h *HTTPHandler) ListTransactions(c *gin.Context) {
	var (
		list []domain.Transaction
		err  error
	)

	fromParam, toParam := c.Query("from"), c.Query("to")
	if fromParam != "" || toParam != "" {
		var from, to time.Time
		if from, err = parseDate("from", fromParam); err != nil {
			writeError(c, err)
			return
		}
		if to, err = parseDate("to", toParam); err != nil {
			writeError(c, err)
			return
		}
		list, err = h.history.ByDateRange(c.Request.Context(), from, to)
	} else {
		limit := 0
		if v := c.Query("limit"); v != "" {
			if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
				writeError(c, domain.InvalidInputError("limit must be a non-negative integer, got %q", v))
				return
			}
		}
		list, err = h.history.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTransactionList(list))
}

func (h *HTTPHandler) ProductTransactions(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	list, err := h.history.ByProduct(c.Request.Context(), productID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTransactionList(list))
}

func (h *HTTPHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, domain.InvalidInputError("invalid request body"))
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			writeError(c, domain.InvalidInputError("%v", err))
			return false
		}
		resp := newErrorResponse(domain.InvalidInputError("missing or invalid fields"))
		resp.Fields = processValidationErrors(validationErrors)
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
		return false
	}
	return true
}

func processValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func productIDParam(c *gin.Context) (int64, bool) {
	raw := c.Param("product_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(c, domain.InvalidInputError("product id must be an integer, got %q", raw))
		return 0, false
	}
	return id, true
}

func parseDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.InvalidInputError("%s is required for a date range", name)
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, domain.InvalidInputError("%s must be YYYY-MM-DD or RFC 3339, got %q", name, value)
	}
	return t, nil
}

func newInventoryResponse(inv domain.Inventory) InventoryHTTPResponse {
	return InventoryHTTPResponse{
		ProductID:     inv.ProductID,
		Name:          inv.Name,
		SKU:           inv.SKU,
		Quantity:      inv.Quantity,
		MinStockLevel: inv.MinStockLevel,
		Status:        inv.Status(),
		LastUpdated:   inv.LastUpdated,
	}
}

func newInventoryList(list []domain.Inventory) []InventoryHTTPResponse {
	out := make([]InventoryHTTPResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, newInventoryResponse(inv))
	}
	return out
}

func newTransactionResponse(txn domain.Transaction) TransactionHTTPResponse {
	return TransactionHTTPResponse{
		ID:          txn.ID,
		ProductID:   txn.ProductID,
		ProductName: txn.ProductName,
		Direction:   string(txn.Direction),
		Quantity:    txn.Quantity,
		Notes:       txn.Notes,
		CreatedAt:   txn.CreatedAt,
	}
}

func newTransactionList(list []domain.Transaction) []TransactionHTTPResponse {
	out := make([]TransactionHTTPResponse, 0, len(list))
	for _, txn := range list {
		out = append(out, newTransactionResponse(txn))
	}
	return out
}
