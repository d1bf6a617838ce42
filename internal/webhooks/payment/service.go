// Package paymentwebhook turns payment gateway callbacks into order state
// changes and kicks off fulfillment for paid orders.
package paymentwebhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/internal/fulfillment"
	"github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/internal/refunds"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/outbox"
)

// Gateway payment statuses.
const (
	StatusPaid    = "PAID"
	StatusExpired = "EXPIRED"
	StatusFailed  = "FAILED"
)

// Event is a decoded gateway callback.
type Event struct {
	EventID     string     `json:"event_id" validate:"required,max=128"`
	InvoiceCode string     `json:"invoice_code" validate:"required,max=64"`
	Status      string     `json:"status" validate:"required,oneof=PAID EXPIRED FAILED paid expired failed"`
	Amount      int64      `json:"amount" validate:"gte=0"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// Outcome is what the callback did to the order.
type Outcome struct {
	OrderID     uuid.UUID           `json:"order_id"`
	InvoiceCode string              `json:"invoice_code"`
	Status      enums.OrderStatus   `json:"status"`
	Fulfillment *fulfillment.Report `json:"fulfillment,omitempty"`
	Refund      *refunds.Result     `json:"refund,omitempty"`
}

type orderService interface {
	MarkPaid(ctx context.Context, input orders.MarkPaidInput) (*models.Order, error)
	CancelUnpaid(ctx context.Context, invoiceCode, reason string) (*models.Order, error)
}

type latePayments interface {
	CreditLatePayment(ctx context.Context, input refunds.LatePaymentInput) (*refunds.Result, error)
}

type ServiceParams struct {
	Orders  orderService
	Engine  fulfillment.Engine
	Refunds latePayments
	Logger  *logger.Logger
}

type Service struct {
	orders  orderService
	engine  fulfillment.Engine
	refunds latePayments
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("fulfillment engine required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{orders: params.Orders, engine: params.Engine, refunds: params.Refunds, logg: params.Logger}, nil
}

var webhookActor = &outbox.ActorRef{Role: "system", Source: "payment_webhook"}

// HandleEvent applies one callback. A fulfillment error after the payment is
// recorded does not fail the callback; the re-driver picks the order up.
func (s *Service) HandleEvent(ctx context.Context, event Event) (*Outcome, error) {
	invoice := strings.TrimSpace(event.InvoiceCode)
	if invoice == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice code is required")
	}
	ctx = s.logg.WithInvoice(ctx, invoice)

	switch strings.ToUpper(strings.TrimSpace(event.Status)) {
	case StatusPaid:
		return s.handlePaid(ctx, invoice, event)
	case StatusExpired, StatusFailed:
		reason := "Payment " + strings.ToLower(event.Status)
		order, err := s.orders.CancelUnpaid(ctx, invoice, reason)
		if err != nil {
			return nil, err
		}
		s.logg.Info(s.logg.WithField(ctx, "status", order.Status), "unpaid order closed by gateway")
		return &Outcome{OrderID: order.ID, InvoiceCode: order.InvoiceCode, Status: order.Status}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment status").
		WithDetails(map[string]any{"status": event.Status})
}

func (s *Service) handlePaid(ctx context.Context, invoice string, event Event) (*Outcome, error) {
	input := orders.MarkPaidInput{
		InvoiceCode: invoice,
		Amount:      event.Amount,
		Actor:       webhookActor,
	}
	if event.PaidAt != nil {
		input.PaidAt = *event.PaidAt
	}
	order, err := s.orders.MarkPaid(ctx, input)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{OrderID: order.ID, InvoiceCode: order.InvoiceCode, Status: order.Status}
	if order.Status == enums.OrderStatusCanceled && order.PaidAt == nil {
		return s.creditLatePayment(ctx, input, outcome)
	}
	if order.Status != enums.OrderStatusProcessing {
		s.logg.Info(s.logg.WithField(ctx, "status", order.Status), "paid callback for closed order ignored")
		return outcome, nil
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	report, err := s.engine.Fulfill(ctx, order.ID, webhookActor)
	if err != nil {
		s.logg.Error(ctx, "fulfillment after payment failed; left for re-driver", err)
		return outcome, nil
	}
	outcome.Fulfillment = report
	outcome.Status = report.Status
	return outcome, nil
}

// creditLatePayment handles a capture for an order the expiry job or the
// gateway already canceled. Nothing is delivered; the money goes to the
// customer's wallet.
func (s *Service) creditLatePayment(ctx context.Context, input orders.MarkPaidInput, outcome *Outcome) (*Outcome, error) {
	ctx = s.logg.WithOrderID(ctx, outcome.OrderID.String())
	result, err := s.refunds.CreditLatePayment(ctx, refunds.LatePaymentInput{
		InvoiceCode: input.InvoiceCode,
		Amount:      input.Amount,
		PaidAt:      input.PaidAt,
		Actor:       input.Actor,
	})
	if err != nil {
		return nil, err
	}
	outcome.Status = result.Status
	outcome.Refund = result
	s.logg.Warn(s.logg.WithField(ctx, "amount", result.Amount), "paid callback for canceled order credited to wallet")
	return outcome, nil
}
