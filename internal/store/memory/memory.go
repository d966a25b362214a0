package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tiendaluna/backend/internal/domain"
	"tiendaluna/backend/internal/store"
	"tiendaluna/backend/internal/xid"
)

// Store keeps everything behind one mutex. It exists for tests and for
// running the server without a database; it honors the same stock and
// transition rules as the postgres store.
type Store struct {
	mu        sync.RWMutex
	products  map[int64]*domain.Product
	orders    map[string]*domain.Order
	sequences map[string]int64
	auditLogs []domain.AuditLog
}

func New() *Store {
	return &Store{
		products:  make(map[int64]*domain.Product),
		orders:    make(map[string]*domain.Order),
		sequences: make(map[string]int64),
	}
}

// NewSeeded returns a store with a small catalog, enough to exercise
// the API by hand when DATABASE_URL is unset.
func NewSeeded() *Store {
	s := New()
	s.SeedProducts(
		domain.Product{ID: 1, Description: "Linen shirt", UnitPrice: decimal.NewFromInt(45), OnHand: 24},
		domain.Product{ID: 2, Description: "Denim jacket", UnitPrice: decimal.NewFromInt(120), OnHand: 10},
		domain.Product{ID: 3, Description: "Canvas tote", UnitPrice: decimal.NewFromInt(18), OnHand: 60},
	)
	return s
}

func (s *Store) SeedProducts(products ...domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		cp := p
		s.products[p.ID] = &cp
	}
}

// StockOnHand reports current availability for a product, or -1 when
// the product does not exist.
func (s *Store) StockOnHand(productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return -1
	}
	return p.OnHand
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, store.ErrInvalidRequest
	}
	for _, line := range order.Lines {
		if line.ProductID < 1 || line.Quantity < 1 {
			return nil, store.ErrInvalidRequest
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	requested := make(map[int64]int)
	for _, line := range order.Lines {
		requested[line.ProductID] += line.Quantity
	}

	// Check everything before touching anything, so a shortfall on the
	// last line leaves all stock untouched.
	for productID, qty := range requested {
		product, ok := s.products[productID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %d", store.ErrInvalidRequest, productID)
		}
		if qty > product.OnHand {
			return nil, &store.StockShortfallError{
				ProductID: productID,
				Requested: qty,
				Available: product.OnHand,
			}
		}
	}

	for productID, qty := range requested {
		s.products[productID].OnHand -= qty
	}

	s.sequences[domain.SequenceInvoiceNumber]++
	invoiceValue := s.sequences[domain.SequenceInvoiceNumber]
	s.sequences[domain.SequenceOrderNumber]++
	orderValue := s.sequences[domain.SequenceOrderNumber]

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	order.Number = domain.FormatOrderNumber(orderValue)
	order.SaleID = xid.New("sale")
	order.InvoiceID = xid.New("inv")
	order.InvoiceNumber = domain.FormatInvoiceNumber(invoiceValue)
	order.InvoiceStatus = domain.InvoiceStatusActive

	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = xid.New("line")
		}
		order.Lines[i].OrderID = order.ID
	}

	stored := cloneOrder(&order)
	s.orders[order.ID] = stored

	return cloneOrder(stored), nil
}

func (s *Store) TransitionOrder(ctx context.Context, orderID string, target string) (*domain.OrderTransition, error) {
	if !domain.KnownStatus(target) {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	previous := order.Status
	if !domain.CanTransition(previous, target) {
		return nil, &store.TransitionError{Current: previous, Target: target}
	}

	order.Status = target
	order.Cancelled = target == domain.OrderStatusCancelled

	if domain.TransitionRestocks(previous, target) {
		for _, line := range order.Lines {
			if product, ok := s.products[line.ProductID]; ok {
				product.OnHand += line.Quantity
			}
		}
		order.InvoiceStatus = domain.InvoiceStatusVoided
	}

	return &domain.OrderTransition{Order: *cloneOrder(order), PreviousStatus: previous}, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, order := range s.orders {
		if order.Number == number {
			return cloneOrder(order), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Order, 0, 8)
	for _, order := range s.orders {
		if order.CustomerID != nil && *order.CustomerID == customerID {
			matched = append(matched, order)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]domain.Order, 0, len(matched))
	for _, order := range matched {
		out = append(out, *cloneOrder(order))
	}
	return out, nil
}

func (s *Store) CountOrdersByStatus(ctx context.Context) (domain.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts domain.StatusCounts
	for _, order := range s.orders {
		switch order.Status {
		case domain.OrderStatusPending:
			counts.Pending++
		case domain.OrderStatusProcessing:
			counts.Processing++
		case domain.OrderStatusCompleted:
			counts.Completed++
		case domain.OrderStatusDelivered:
			counts.Delivered++
		case domain.OrderStatusCancelled:
			counts.Cancelled++
		}
		counts.Total++
	}
	return counts, nil
}

func (s *Store) AllocateSequence(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[name]++
	return s.sequences[name], nil
}

func (s *Store) ResyncSequence(ctx context.Context, name string, floor int64) (int64, error) {
	if floor < 0 {
		return 0, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if floor > s.sequences[name] {
		s.sequences[name] = floor
	}
	return s.sequences[name], nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func cloneOrder(order *domain.Order) *domain.Order {
	cp := *order
	if order.CustomerID != nil {
		id := *order.CustomerID
		cp.CustomerID = &id
	}
	cp.Lines = make([]domain.OrderLine, len(order.Lines))
	copy(cp.Lines, order.Lines)
	return &cp
}
