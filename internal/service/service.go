package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"tiendaluna/backend/internal/cache"
	"tiendaluna/backend/internal/domain"
	"tiendaluna/backend/internal/notify"
	"tiendaluna/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	cache       cache.TrackingCache
	notifier    notify.Notifier
	validate    *validator.Validate
	trackingTTL time.Duration
}

func New(repo store.Repository, trackingCache cache.TrackingCache, notifier notify.Notifier, trackingTTL time.Duration) *Service {
	if trackingCache == nil {
		trackingCache = cache.NoopTrackingCache{}
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if trackingTTL <= 0 {
		trackingTTL = 60 * time.Second
	}

	return &Service{
		repo:        repo,
		cache:       trackingCache,
		notifier:    notifier,
		validate:    validator.New(),
		trackingTTL: trackingTTL,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderConfirmation, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	req.DeliveryWindow = strings.TrimSpace(req.DeliveryWindow)
	req.Notes = strings.TrimSpace(req.Notes)
	req.InitialStatus = strings.ToLower(strings.TrimSpace(req.InitialStatus))

	if err := s.validate.Struct(req); err != nil {
		return domain.OrderConfirmation{}, fmt.Errorf("%w: %v", store.ErrInvalidRequest, err)
	}

	// A walk-in customer gives name and phone; a registered one gives an
	// id. Either identifies the order for later tracking.
	if req.CustomerID == nil && (req.CustomerName == "" || req.CustomerPhone == "") {
		return domain.OrderConfirmation{}, fmt.Errorf("%w: customer_id or customer_name+customer_phone required", store.ErrInvalidRequest)
	}
	if req.CustomerID != nil && *req.CustomerID < 1 {
		return domain.OrderConfirmation{}, store.ErrInvalidRequest
	}

	if req.Channel == domain.ChannelWeb && (req.DeliveryAddress == "" || req.DeliveryWindow == "") {
		return domain.OrderConfirmation{}, fmt.Errorf("%w: web orders require delivery_address and delivery_window", store.ErrInvalidRequest)
	}

	status := domain.OrderStatusPending
	switch req.InitialStatus {
	case "", domain.OrderStatusPending:
	case domain.OrderStatusProcessing:
		// Staff at the counter can start an order directly in
		// processing; web orders always enter as pending.
		if req.Channel != domain.ChannelInStore {
			return domain.OrderConfirmation{}, fmt.Errorf("%w: initial_status processing is in_store only", store.ErrInvalidRequest)
		}
		status = domain.OrderStatusProcessing
	default:
		return domain.OrderConfirmation{}, fmt.Errorf("%w: unsupported initial_status %q", store.ErrInvalidRequest, req.InitialStatus)
	}

	lines := make([]domain.OrderLine, 0, len(req.Items))
	total := decimal.Zero
	for _, item := range req.Items {
		if !item.UnitPrice.IsPositive() {
			return domain.OrderConfirmation{}, fmt.Errorf("%w: unit_price must be positive", store.ErrInvalidRequest)
		}
		gross := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if item.Discount.IsNegative() || item.Discount.GreaterThan(gross) {
			return domain.OrderConfirmation{}, fmt.Errorf("%w: discount must be between 0 and the line amount", store.ErrInvalidRequest)
		}
		subtotal := gross.Sub(item.Discount).Round(2)
		lines = append(lines, domain.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			Subtotal:  subtotal,
			Color:     strings.TrimSpace(item.Color),
			Size:      strings.TrimSpace(item.Size),
		})
		total = total.Add(subtotal)
	}
	total = total.Round(2)

	order := domain.Order{
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		Channel:         req.Channel,
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryWindow:  req.DeliveryWindow,
		Notes:           req.Notes,
		Total:           total,
		Status:          status,
		CreatedAt:       time.Now().UTC(),
		Lines:           lines,
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.OrderConfirmation{}, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("number=%s,channel=%s,total=%s,items=%d", created.Number, created.Channel, created.Total.StringFixed(2), len(created.Lines)))
	s.publishEvent(ctx, domain.OrderEvent{
		OrderID:       created.ID,
		OrderNumber:   created.Number,
		NewStatus:     created.Status,
		CustomerName:  created.CustomerName,
		CustomerPhone: created.CustomerPhone,
		At:            time.Now().UTC(),
	})

	return domain.OrderConfirmation{
		OrderID:       created.ID,
		OrderNumber:   created.Number,
		InvoiceID:     created.InvoiceID,
		InvoiceNumber: created.InvoiceNumber,
		SaleID:        created.SaleID,
		Total:         created.Total,
		Status:        created.Status,
	}, nil
}

func (s *Service) TransitionOrder(ctx context.Context, orderID string, target string) (domain.TransitionResponse, error) {
	orderID = strings.TrimSpace(orderID)
	target = strings.ToLower(strings.TrimSpace(target))
	if orderID == "" {
		return domain.TransitionResponse{}, store.ErrInvalidRequest
	}
	if !domain.KnownStatus(target) {
		return domain.TransitionResponse{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidRequest, target)
	}

	result, err := s.repo.TransitionOrder(ctx, orderID, target)
	if err != nil {
		return domain.TransitionResponse{}, err
	}

	if err := s.cache.Invalidate(ctx, result.Order.Number); err != nil {
		log.Printf("[service] WARN: failed to invalidate tracking cache order=%s: %v", result.Order.Number, err)
	}

	s.logAudit(ctx, "order_transition", "order", result.Order.ID, fmt.Sprintf("number=%s,from=%s,to=%s", result.Order.Number, result.PreviousStatus, result.Order.Status))
	s.publishEvent(ctx, domain.OrderEvent{
		OrderID:        result.Order.ID,
		OrderNumber:    result.Order.Number,
		PreviousStatus: result.PreviousStatus,
		NewStatus:      result.Order.Status,
		CustomerName:   result.Order.CustomerName,
		CustomerPhone:  result.Order.CustomerPhone,
		At:             time.Now().UTC(),
	})

	return domain.TransitionResponse{
		OrderID:        result.Order.ID,
		OrderNumber:    result.Order.Number,
		PreviousStatus: result.PreviousStatus,
		NewStatus:      result.Order.Status,
	}, nil
}

func (s *Service) GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, store.ErrInvalidRequest
	}
	return s.repo.GetOrderByID(ctx, orderID)
}

// TrackOrderByPhone is the public lookup: order number plus the phone
// given at purchase time. The phone check is constant regardless of
// which part mismatched so callers cannot probe for valid numbers.
func (s *Service) TrackOrderByPhone(ctx context.Context, orderNumber string, phone string) (*domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	phone = strings.TrimSpace(phone)
	if orderNumber == "" || phone == "" {
		return nil, store.ErrInvalidRequest
	}

	order, err := s.trackOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.CustomerPhone != phone {
		return nil, store.ErrNotFound
	}
	return order, nil
}

// TrackOrderByNumber serves token-authenticated lookups, where the
// caller already proved it holds a link issued for this order.
func (s *Service) TrackOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, store.ErrInvalidRequest
	}
	return s.trackOrder(ctx, orderNumber)
}

func (s *Service) trackOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	if cached, ok, err := s.cache.Get(ctx, orderNumber); err != nil {
		log.Printf("[service] WARN: tracking cache read failed order=%s: %v", orderNumber, err)
	} else if ok {
		return cached, nil
	}

	order, err := s.repo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, orderNumber, order, s.trackingTTL); err != nil {
		log.Printf("[service] WARN: tracking cache write failed order=%s: %v", orderNumber, err)
	}
	return order, nil
}

func (s *Service) ListOrdersByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	if customerID < 1 {
		return nil, store.ErrInvalidRequest
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListOrdersByCustomer(ctx, customerID, limit)
}

func (s *Service) CountOrdersByStatus(ctx context.Context) (domain.StatusCounts, error) {
	return s.repo.CountOrdersByStatus(ctx)
}

func (s *Service) ResyncSequence(ctx context.Context, name string, floor int64) (domain.ResyncResponse, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != domain.SequenceInvoiceNumber && name != domain.SequenceOrderNumber {
		return domain.ResyncResponse{}, fmt.Errorf("%w: unknown sequence %q", store.ErrInvalidRequest, name)
	}
	if floor < 0 {
		return domain.ResyncResponse{}, store.ErrInvalidRequest
	}

	last, err := s.repo.ResyncSequence(ctx, name, floor)
	if err != nil {
		return domain.ResyncResponse{}, err
	}

	s.logAudit(ctx, "sequence_resync", "sequence", name, fmt.Sprintf("floor=%d,last_value=%d", floor, last))

	return domain.ResyncResponse{Sequence: name, LastValue: last}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidRequest
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) publishEvent(ctx context.Context, event domain.OrderEvent) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Printf("[service] WARN: failed to publish order event order=%s status=%s: %v", event.OrderNumber, event.NewStatus, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	if actor.Name == "" {
		actor.Name = "system"
	}

	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		Actor:      actor.Name,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[service] WARN: failed to write audit log action=%s entity=%s: %v", action, entityID, err)
	}
}
