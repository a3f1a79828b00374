package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStorageFailure    = errors.New("storage failure")
	ErrDuplicateRequest  = errors.New("duplicate request")
)

const (
	KindNotFound          = "NotFound"
	KindInvalidInput      = "InvalidInput"
	KindInsufficientStock = "InsufficientStock"
	KindStorageFailure    = "StorageFailure"
	KindDuplicateRequest  = "DuplicateRequest"
	KindUnknown           = "Unknown"
)

// InsufficientStockError is returned when a stock-out asks for more than is on hand.
type InsufficientStockError struct {
	ProductID int64
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StorageError wraps a failure of the underlying store. Nothing was committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

func NotFoundError(productID int64) error {
	return fmt.Errorf("%w: product %d", ErrNotFound, productID)
}

func InvalidInputError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// KindOf classifies err into one of the ledger error kinds.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorageFailure):
		return KindStorageFailure
	case errors.Is(err, ErrDuplicateRequest):
		return KindDuplicateRequest
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	}
	return KindUnknown
}

// IsRetryable reports whether retrying the same call could succeed.
// Only storage failures qualify; they guarantee nothing was mutated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
