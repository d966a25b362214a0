package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tiendaluna/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrIllegalTransition = errors.New("illegal transition")
)

// StockShortfallError reports which line item failed reservation and by
// how much. It unwraps to ErrInsufficientStock.
type StockShortfallError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockShortfallError) Unwrap() error {
	return ErrInsufficientStock
}

// TransitionError names the current and attempted status of a rejected
// transition. It unwraps to ErrIllegalTransition.
type TransitionError struct {
	Current string
	Target  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.Current, e.Target)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

type Repository interface {
	// CreateOrder persists the sale, invoice, order, and all lines as one
	// atomic unit: stock is decremented and both sequence numbers are
	// allocated inside the same transaction. The returned order carries
	// the assigned identifiers and numbers.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	// TransitionOrder changes an order's status if the transition is
	// legal, restocking every line when the order enters cancelled.
	TransitionOrder(ctx context.Context, orderID string, target string) (*domain.OrderTransition, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error)
	CountOrdersByStatus(ctx context.Context) (domain.StatusCounts, error)
	// AllocateSequence returns the next value of the named counter,
	// strictly greater than every previously issued value.
	AllocateSequence(ctx context.Context, name string) (int64, error)
	// ResyncSequence forces the counter to at least floor so the next
	// allocation is > floor. Operator repair path only.
	ResyncSequence(ctx context.Context, name string, floor int64) (int64, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
