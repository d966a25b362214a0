package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	OnHand      int             `json:"on_hand"`
}

type Sale struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	Cancelled     bool            `json:"cancelled"`
}

type Invoice struct {
	ID       string          `json:"id"`
	Number   string          `json:"number"`
	IssuedAt time.Time       `json:"issued_at"`
	Total    decimal.Decimal `json:"total"`
	Status   string          `json:"status"`
	SaleID   string          `json:"sale_id"`
}

type Order struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	CustomerID      *int64          `json:"customer_id,omitempty"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	Channel         string          `json:"channel"`
	PaymentMethod   string          `json:"payment_method"`
	DeliveryAddress string          `json:"delivery_address,omitempty"`
	DeliveryWindow  string          `json:"delivery_window,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Total           decimal.Decimal `json:"total"`
	Status          string          `json:"status"`
	Cancelled       bool            `json:"cancelled"`
	SaleID          string          `json:"sale_id"`
	InvoiceID       string          `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	InvoiceStatus   string          `json:"invoice_status"`
	CreatedAt       time.Time       `json:"created_at"`
	Lines           []OrderLine     `json:"lines"`
}

type OrderLine struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Color     string          `json:"color,omitempty"`
	Size      string          `json:"size,omitempty"`
}

type OrderItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Color     string          `json:"color,omitempty"`
	Size      string          `json:"size,omitempty"`
}

type OrderCreateRequest struct {
	CustomerID      *int64             `json:"customer_id"`
	CustomerName    string             `json:"customer_name"`
	CustomerPhone   string             `json:"customer_phone"`
	Channel         string             `json:"channel" validate:"required,oneof=web in_store"`
	PaymentMethod   string             `json:"payment_method" validate:"required"`
	DeliveryAddress string             `json:"delivery_address,omitempty"`
	DeliveryWindow  string             `json:"delivery_window,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	InitialStatus   string             `json:"initial_status,omitempty"`
	Items           []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type OrderConfirmation struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	SaleID        string          `json:"sale_id"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
}

type TransitionRequest struct {
	OrderID      string `json:"order_id"`
	TargetStatus string `json:"target_status"`
}

type TransitionResponse struct {
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
}

// OrderTransition is the repository-level result of a status change.
type OrderTransition struct {
	Order          Order
	PreviousStatus string
}

// OrderEvent is handed to the Notifier after a successful creation or
// transition. Delivery is best-effort; the core never retries.
type OrderEvent struct {
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	CustomerName   string    `json:"customer_name"`
	CustomerPhone  string    `json:"customer_phone"`
	At             time.Time `json:"at"`
}

type StatusCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Delivered  int64 `json:"delivered"`
	Cancelled  int64 `json:"cancelled"`
	Total      int64 `json:"total"`
}

type ResyncRequest struct {
	Floor int64 `json:"floor"`
}

type ResyncResponse struct {
	Sequence  string `json:"sequence"`
	LastValue int64  `json:"last_value"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// Actor identifies the staff member or system component performing a
// mutating operation. Identity is asserted by the upstream gateway.
type Actor struct {
	Name string
}

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

const (
	ChannelWeb     = "web"
	ChannelInStore = "in_store"
)

const (
	InvoiceStatusActive = "active"
	InvoiceStatusVoided = "voided"
)

const (
	SequenceInvoiceNumber = "invoice_number"
	SequenceOrderNumber   = "order_number"
)
