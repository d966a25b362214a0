package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tiendaluna/backend/internal/domain"
)

func TestCancelOrderRestocksAndVoidsInvoice(t *testing.T) {
	databaseURL := os.Getenv("TIENDALUNA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TIENDALUNA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	productID := time.Now().UnixNano()

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_lines WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `
			DELETE FROM orders WHERE id IN (
				SELECT DISTINCT order_id FROM order_lines WHERE product_id = $1
			)`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, description, unit_price, on_hand, updated_at)
		VALUES ($1, 'integration shirt', 45.00, 10, now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	order := domain.Order{
		CustomerName:  "Integration Tester",
		CustomerPhone: fmt.Sprintf("+00-%d", productID),
		Channel:       domain.ChannelInStore,
		PaymentMethod: "cash",
		Total:         decimal.RequireFromString("90.00"),
		Status:        domain.OrderStatusPending,
		Lines: []domain.OrderLine{{
			ProductID: productID,
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("45.00"),
			Discount:  decimal.Zero,
			Subtotal:  decimal.RequireFromString("90.00"),
		}},
	}

	created, err := s.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	var onHand int
	if err := s.db.QueryRowContext(ctx, `SELECT on_hand FROM products WHERE id = $1`, productID).Scan(&onHand); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if onHand != 8 {
		t.Fatalf("expected stock 8 after order, got %d", onHand)
	}

	if _, err := s.TransitionOrder(ctx, created.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT on_hand FROM products WHERE id = $1`, productID).Scan(&onHand); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if onHand != 10 {
		t.Fatalf("expected stock restored to 10, got %d", onHand)
	}

	var invoiceStatus string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM invoices WHERE id = $1`, created.InvoiceID).Scan(&invoiceStatus); err != nil {
		t.Fatalf("query invoice status: %v", err)
	}
	if invoiceStatus != domain.InvoiceStatusVoided {
		t.Fatalf("expected voided invoice, got %s", invoiceStatus)
	}

	var saleCancelled bool
	if err := s.db.QueryRowContext(ctx, `SELECT cancelled FROM sales WHERE id = $1`, created.SaleID).Scan(&saleCancelled); err != nil {
		t.Fatalf("query sale: %v", err)
	}
	if !saleCancelled {
		t.Fatalf("expected sale to be cancelled")
	}
}
