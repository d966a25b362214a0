package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusProcessing, OrderStatusCompleted, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusPending, false},
		{OrderStatusCompleted, OrderStatusDelivered, true},
		{OrderStatusCompleted, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusPending, OrderStatusPending, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Fatalf("CanTransition(%s, %s) = %t, want %t", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range []string{OrderStatusDelivered, OrderStatusCancelled} {
		if !IsTerminalStatus(status) {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	for _, status := range []string{OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted} {
		if IsTerminalStatus(status) {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}

func TestTransitionRestocks(t *testing.T) {
	if !TransitionRestocks(OrderStatusPending, OrderStatusCancelled) {
		t.Fatalf("cancelling a pending order must restock")
	}
	if !TransitionRestocks(OrderStatusCompleted, OrderStatusCancelled) {
		t.Fatalf("cancelling a completed order must restock")
	}
	if TransitionRestocks(OrderStatusPending, OrderStatusProcessing) {
		t.Fatalf("forward transitions must not restock")
	}
}

func TestNumberFormats(t *testing.T) {
	if got := FormatOrderNumber(42); got != "ORD-00000042" {
		t.Fatalf("unexpected order number: %s", got)
	}
	if got := FormatInvoiceNumber(1); got != "INV-00000001" {
		t.Fatalf("unexpected invoice number: %s", got)
	}
}

func TestKnownStatus(t *testing.T) {
	if KnownStatus("shipped") {
		t.Fatalf("shipped is not a known status")
	}
	for _, status := range OrderStatuses() {
		if !KnownStatus(status) {
			t.Fatalf("expected %s to be known", status)
		}
	}
}
