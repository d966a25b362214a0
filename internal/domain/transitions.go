package domain

// legalTransitions is the single source of truth for the order lifecycle:
// pending -> processing -> completed -> delivered, with cancelled reachable
// from every non-terminal state. A transition to the current state is never
// legal. Both stores consult this table under their respective locks so
// concurrent transition attempts against a stale status are rejected.
var legalTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func KnownStatus(status string) bool {
	_, ok := legalTransitions[status]
	return ok
}

func CanTransition(from string, to string) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled
}

// TransitionRestocks reports whether the given transition returns the
// order's reserved stock to inventory.
func TransitionRestocks(from string, to string) bool {
	return to == OrderStatusCancelled && !IsTerminalStatus(from)
}

func OrderStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusCompleted,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}
