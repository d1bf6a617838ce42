package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/api/middleware"
	"github.com/vouchr/storefront-backend/api/responses"
	"github.com/vouchr/storefront-backend/api/validators"
	"github.com/vouchr/storefront-backend/internal/fulfillment"
	internalorders "github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/internal/refunds"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/pagination"
)

type orderReader interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByInvoice(ctx context.Context, invoiceCode string) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters internalorders.ListFilters) (pagination.Page[models.Order], error)
}

type refunder interface {
	Refund(ctx context.Context, input refunds.RefundInput) (*refunds.Result, error)
}

type refundRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

const defaultOperatorRefundReason = "Refunded by operator"

// List returns a page of orders, newest first.
func List(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		filters, err := buildFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderPageDTO(page))
	}
}

// Detail returns one order with its items.
func Detail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
	}
}

// DetailByInvoice looks an order up by its customer-facing invoice code.
func DetailByInvoice(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		invoice := strings.TrimSpace(chi.URLParam(r, "invoiceCode"))
		if invoice == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invoice code is required"))
			return
		}
		order, err := svc.GetByInvoice(r.Context(), invoice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
	}
}

// Fulfill re-runs fulfillment for a paid order. Items already delivered are
// never dispatched again.
func Fulfill(engine fulfillment.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment engine unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := engine.Fulfill(r.Context(), orderID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// Refund cancels a PROCESSING or FAILED order and credits the buyer wallet.
func Refund(svc refunder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req refundRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		reason := validators.SanitizeString(req.Reason, 255)
		if reason == "" {
			reason = defaultOperatorRefundReason
		}

		result, err := svc.Refund(r.Context(), refunds.RefundInput{
			OrderID: orderID,
			Reason:  reason,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func buildFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(strings.ToUpper(raw))
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("user_id")); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id filter")
		}
		filters.UserID = &userID
	}
	return filters, nil
}
