// Package alerts tells operators about orders that need a human: partial
// fulfillment, manual items and refunds.
package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAttention Kind = "attention"
	KindRefunded  Kind = "refunded"
)

// Alert is one operator-facing message about an order.
type Alert struct {
	Kind        Kind
	OrderID     uuid.UUID
	InvoiceCode string
	Title       string
	Lines       []string
}

// Text renders the alert as plain text.
func (a Alert) Text() string {
	var b strings.Builder
	title := a.Title
	if title == "" {
		title = string(a.Kind)
	}
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(a.Kind)), title)
	if a.InvoiceCode != "" {
		fmt.Fprintf(&b, "\nInvoice: %s", a.InvoiceCode)
	}
	if a.OrderID != uuid.Nil {
		fmt.Fprintf(&b, "\nOrder: %s", a.OrderID)
	}
	for _, line := range a.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return b.String()
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, Alert) error { return nil }
