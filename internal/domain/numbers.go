package domain

import "fmt"

// Human-facing identifiers are zero-padded forms of the raw sequence
// value, distinct from the internal row ids.

func FormatInvoiceNumber(value int64) string {
	return fmt.Sprintf("INV-%08d", value)
}

func FormatOrderNumber(value int64) string {
	return fmt.Sprintf("ORD-%08d", value)
}
