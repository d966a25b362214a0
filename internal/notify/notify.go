package notify

import (
	"context"
	"log"

	"tiendaluna/backend/internal/domain"
)

// Notifier receives order lifecycle events. Delivery is best-effort:
// callers log failures and move on, so an implementation must never
// block order processing for long.
type Notifier interface {
	Notify(ctx context.Context, event domain.OrderEvent) error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, domain.OrderEvent) error { return nil }

// LogNotifier writes events to the process log. Used when Redis is
// not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event domain.OrderEvent) error {
	log.Printf("[notify] order=%s status=%s customer=%s", event.OrderNumber, event.NewStatus, event.CustomerName)
	return nil
}
