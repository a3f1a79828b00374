package domain

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionIn:
		return DirectionIn, nil
	case DirectionOut:
		return DirectionOut, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, s)
}

// Transaction is one stock movement. Records are append-only.
type Transaction struct {
	ID          int64
	ProductID   int64
	ProductName string
	Direction   Direction
	Quantity    int64
	Notes       string
	CreatedAt   time.Time
}

// Delta is the signed change this movement applied to on-hand quantity.
func (t Transaction) Delta() int64 {
	if t.Direction == DirectionOut {
		return -t.Quantity
	}
	return t.Quantity
}
