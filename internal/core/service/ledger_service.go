package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const maxNotesLength = 500

var tracer = otel.Tracer("github.com/rl1809/stock-ledger/internal/core/service")

// LedgerService is the only writer of inventory records and transactions.
// It keeps no state between calls; every movement is a single atomic unit
// in the InventoryRepository.
type LedgerService struct {
	inventory port.InventoryRepository
	catalog   port.Catalog
	logger    logrus.FieldLogger
	now       func() time.Time

	queueMu   sync.RWMutex
	movements chan domain.Transaction
	closed    bool
}

type Option func(*LedgerService)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *LedgerService) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithMovementQueue makes committed movements available on Movements().
// When the queue is full the notification is dropped; the movement itself
// is already committed.
func WithMovementQueue(size int) Option {
	return func(s *LedgerService) { s.movements = make(chan domain.Transaction, size) }
}

func NewLedgerService(inventory port.InventoryRepository, catalog port.Catalog, opts ...Option) *LedgerService {
	s := &LedgerService{
		inventory: inventory,
		catalog:   catalog,
		logger:    logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) StockIn(ctx context.Context, productID, quantity int64, notes string) (domain.Transaction, error) {
	ctx, span := startSpan(ctx, "LedgerService.StockIn", productID, quantity)
	defer span.End()

	notes, err := validateMovement(productID, quantity, notes)
	if err != nil {
		return domain.Transaction{}, spanError(span, err)
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return domain.Transaction{}, spanError(span, err)
	}

	txn, err := s.inventory.StockIn(ctx, productID, quantity, notes, s.now().UTC())
	if err != nil {
		return domain.Transaction{}, spanError(span, s.storageError("stock in", productID, err))
	}

	s.committed(txn)
	return txn, nil
}

func (s *LedgerService) StockOut(ctx context.Context, productID, quantity int64, notes string) (domain.Transaction, error) {
	ctx, span := startSpan(ctx, "LedgerService.StockOut", productID, quantity)
	defer span.End()

	notes, err := validateMovement(productID, quantity, notes)
	if err != nil {
		return domain.Transaction{}, spanError(span, err)
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return domain.Transaction{}, spanError(span, err)
	}

	txn, err := s.inventory.StockOut(ctx, productID, quantity, notes, s.now().UTC())
	if err != nil {
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			s.logger.WithFields(logrus.Fields{
				"module":    "ledger",
				"func":      "StockOut",
				"productId": productID,
				"available": insufficient.Available,
				"requested": insufficient.Requested,
			}).Info("stock out rejected")
			return domain.Transaction{}, spanError(span, insufficient)
		}
		return domain.Transaction{}, spanError(span, s.storageError("stock out", productID, err))
	}

	s.committed(txn)
	return txn, nil
}

func (s *LedgerService) SetMinThreshold(ctx context.Context, productID, minLevel int64) error {
	ctx, span := startSpan(ctx, "LedgerService.SetMinThreshold", productID, minLevel)
	defer span.End()

	if err := validateProductID(productID); err != nil {
		return spanError(span, err)
	}
	if minLevel < 0 {
		return spanError(span, domain.InvalidInputError("minimum stock level cannot be negative, got %d", minLevel))
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return spanError(span, err)
	}

	if err := s.inventory.SetMinStockLevel(ctx, productID, minLevel, s.now().UTC()); err != nil {
		return spanError(span, s.storageError("set min threshold", productID, err))
	}

	s.logger.WithFields(logrus.Fields{
		"module":    "ledger",
		"func":      "SetMinThreshold",
		"productId": productID,
		"minLevel":  minLevel,
	}).Info("min stock level updated")
	return nil
}

// EnsureRecord creates the empty inventory record of a catalog product.
// Calling it again is a no-op.
func (s *LedgerService) EnsureRecord(ctx context.Context, productID int64) error {
	if err := validateProductID(productID); err != nil {
		return err
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return err
	}
	if err := s.inventory.EnsureInventory(ctx, productID, s.now().UTC()); err != nil {
		return s.storageError("ensure record", productID, err)
	}
	return nil
}

// GetStock returns the product's record. A catalog product without one
// reads as an empty record.
func (s *LedgerService) GetStock(ctx context.Context, productID int64) (domain.Inventory, error) {
	if err := validateProductID(productID); err != nil {
		return domain.Inventory{}, err
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return domain.Inventory{}, err
	}

	inv, err := s.inventory.GetInventory(ctx, productID)
	if err != nil {
		return domain.Inventory{}, s.storageError("get stock", productID, err)
	}
	if inv == nil {
		return domain.NewInventory(productID, time.Time{}), nil
	}
	return *inv, nil
}

// Movements exposes committed movements when a queue was configured.
func (s *LedgerService) Movements() <-chan domain.Transaction {
	return s.movements
}

// Close stops movement notifications and closes the queue. Movements that
// commit afterwards are still applied but not queued.
func (s *LedgerService) Close() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.movements != nil {
		close(s.movements)
	}
}

func (s *LedgerService) committed(txn domain.Transaction) {
	s.logger.WithFields(logrus.Fields{
		"module":        "ledger",
		"transactionId": txn.ID,
		"productId":     txn.ProductID,
		"direction":     txn.Direction,
		"quantity":      txn.Quantity,
	}).Info("stock movement committed")

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	if s.movements == nil {
		return
	}
	if s.closed {
		s.logger.WithField("transactionId", txn.ID).Warn("movement queue closed, notification dropped")
		return
	}
	select {
	case s.movements <- txn:
	default:
		s.logger.WithField("transactionId", txn.ID).Warn("movement queue full, notification dropped")
	}
}

func (s *LedgerService) requireProduct(ctx context.Context, productID int64) error {
	ok, err := s.catalog.Exists(ctx, productID)
	if err != nil {
		return s.storageError("catalog lookup", productID, err)
	}
	if !ok {
		return domain.NotFoundError(productID)
	}
	return nil
}

func (s *LedgerService) storageError(op string, productID int64, err error) error {
	var se *domain.StorageError
	if errors.As(err, &se) || errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"module":    "ledger",
		"op":        op,
		"productId": productID,
	}).Error(err.Error())
	return &domain.StorageError{Op: op, Err: err}
}

func validateProductID(productID int64) error {
	if productID <= 0 {
		return domain.InvalidInputError("product id must be greater than zero, got %d", productID)
	}
	return nil
}

func validateMovement(productID, quantity int64, notes string) (string, error) {
	if err := validateProductID(productID); err != nil {
		return "", err
	}
	if quantity <= 0 {
		return "", domain.InvalidInputError("quantity must be greater than zero, got %d", quantity)
	}
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return "", domain.InvalidInputError("notes cannot exceed %d characters", maxNotesLength)
	}
	return notes, nil
}

func startSpan(ctx context.Context, name string, productID, amount int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int64("amount", amount),
	))
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, domain.KindOf(err))
	return err
}
