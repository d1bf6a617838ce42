package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/internal/providers"
	"github.com/vouchr/storefront-backend/internal/stock"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/outbox"
	"github.com/vouchr/storefront-backend/pkg/outbox/payloads"
)

const (
	noteTargetMissing    = "Target missing"
	noteNoMapping        = "No active provider mapping"
	noteManual           = "Awaiting manual fulfillment"
	noteVariantMissing   = "Variant missing"
	noteVendorNoResponse = "Vendor did not respond in time"
	noteAwaitingVendor   = "Awaiting vendor confirmation"
)

// errAlreadyFulfilled rolls back a claim when a concurrent run delivered the
// item first.
var errAlreadyFulfilled = errors.New("item already fulfilled")

// classify routes an item by the category of its product.
func classify(item models.OrderItem) Path {
	if item.Variant == nil || item.Variant.Product == nil {
		return PathManual
	}
	category := item.Variant.Product.CategoryType
	switch {
	case category.UsesStockPool():
		return PathStock
	case category.UsesProvider():
		return PathProvider
	}
	return PathManual
}

func (e *engine) fulfillItem(ctx context.Context, order *models.Order, item *models.OrderItem, actor *outbox.ActorRef) ItemReport {
	report := ItemReport{ItemID: item.ID, VariantID: item.VariantID, Path: classify(*item)}
	if item.Succeeded() {
		report.Skipped = true
		report.Outcome = item.ProviderStatus
		report.Provider = item.ProviderCode
		return report
	}
	if dataError(item) {
		report.Skipped = true
		report.Outcome = item.ProviderStatus
		report.Note = *item.Note
		return report
	}

	ctx = e.logg.WithField(ctx, "item_id", item.ID.String())
	if item.Variant == nil {
		e.persist(ctx, order, item, &report, outcomeFailed(nil, noteVariantMissing), actor)
		return e.finish(ctx, report)
	}

	switch report.Path {
	case PathStock:
		e.fulfillFromStock(ctx, order, item, &report, actor)
	case PathProvider:
		e.fulfillFromProvider(ctx, order, item, &report, actor)
	default:
		if _, err := e.orders.NoteManualItem(ctx, item.ID, noteManual); err != nil {
			report.Error = err.Error()
			e.logg.Error(ctx, "failed to annotate manual item", err)
		}
		report.Note = noteManual
	}
	return e.finish(ctx, report)
}

func (e *engine) finish(ctx context.Context, report ItemReport) ItemReport {
	outcome := "manual"
	if report.Outcome != nil {
		outcome = string(*report.Outcome)
	}
	if report.Error != "" && report.Outcome == nil && report.Path != PathManual {
		outcome = "error"
	}
	e.metrics.IncItem(string(report.Path), outcome)

	fields := map[string]any{
		"path":    report.Path,
		"outcome": outcome,
	}
	if report.Provider != nil {
		fields["provider"] = report.Provider.String()
	}
	if report.Note != "" {
		fields["note"] = report.Note
	}
	logCtx := e.logg.WithFields(ctx, fields)
	switch {
	case report.Error != "":
		e.logg.Warn(e.logg.WithField(logCtx, "error", report.Error), "item fulfillment incomplete")
	case report.Outcome != nil && *report.Outcome == enums.ProviderStatusSuccess:
		e.logg.Info(logCtx, "item fulfilled")
	default:
		e.logg.Info(logCtx, "item not fulfilled")
	}
	return report
}

// fulfillFromStock claims rows and records the outcome in one transaction. An
// insufficient pool rolls the claim back and records INSUFFICIENT_INVENTORY.
func (e *engine) fulfillFromStock(ctx context.Context, order *models.Order, item *models.OrderItem, report *ItemReport, actor *outbox.ActorRef) {
	now := e.now()
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claim, err := e.stock.Claim(ctx, tx, stock.ClaimInput{
			VariantID:   item.VariantID,
			OrderItemID: item.ID,
			Quantity:    item.Quantity,
		})
		if err != nil {
			return err
		}
		outcome := orders.ItemOutcome{
			Status:      enums.ProviderStatusSuccess,
			SN:          &claim.Payload,
			FulfilledAt: &now,
		}
		return e.record(ctx, tx, order, item, report, outcome, actor)
	})
	switch {
	case err == nil:
	case errors.Is(err, errAlreadyFulfilled):
		report.Skipped = true
		report.Outcome = ptr(enums.ProviderStatusSuccess)
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficient):
		e.persist(ctx, order, item, report, orders.ItemOutcome{
			Status: enums.ProviderStatusInsufficientInventory,
			Note:   ptr(insufficientNote(err)),
		}, actor)
	default:
		report.Error = err.Error()
		e.logg.Error(ctx, "stock claim failed", err)
	}
}

func (e *engine) fulfillFromProvider(ctx context.Context, order *models.Order, item *models.OrderItem, report *ItemReport, actor *outbox.ActorRef) {
	if item.Target == nil || strings.TrimSpace(*item.Target) == "" {
		e.persist(ctx, order, item, report, outcomeFailed(nil, noteTargetMissing), actor)
		return
	}
	if item.ProviderStatus != nil && *item.ProviderStatus == enums.ProviderStatusPending && item.ProviderCode != nil {
		e.followUp(ctx, order, item, report, actor)
		return
	}
	offer := resolveOffer(item.Variant)
	if offer == nil {
		e.persist(ctx, order, item, report, outcomeFailed(nil, noteNoMapping), actor)
		return
	}
	code := offer.ProviderCode
	report.Provider = &code
	gateway, ok := e.gateways.Gateway(code)
	if !ok {
		e.persist(ctx, order, item, report, outcomeFailed(&code, fmt.Sprintf("Provider %s is not configured", code)), actor)
		return
	}

	result, err := e.dispatch(ctx, gateway, providers.Request{
		SKU:      offer.ProviderSKU,
		Target:   strings.TrimSpace(*item.Target),
		RefID:    providers.RefID(order.InvoiceCode, item.ID),
		Quantity: item.Quantity,
	})
	if err != nil {
		e.persist(ctx, order, item, report, outcomeFailed(&code, err.Error()), actor)
		return
	}
	e.persist(ctx, order, item, report, e.outcomeFrom(code, result), actor)
}

// followUp resolves an item a vendor already accepted as PENDING. The item
// stays with that vendor: it is polled when the vendor returned a transaction
// id and re-sent under the same ref id otherwise. A transport error never
// fails an accepted item.
func (e *engine) followUp(ctx context.Context, order *models.Order, item *models.OrderItem, report *ItemReport, actor *outbox.ActorRef) {
	code := *item.ProviderCode
	report.Provider = &code
	report.Outcome = ptr(enums.ProviderStatusPending)
	trxID := ""
	if item.ProviderTrxID != nil {
		trxID = strings.TrimSpace(*item.ProviderTrxID)
	}
	report.TrxID = trxID

	gateway, ok := e.gateways.Gateway(code)
	if !ok {
		report.Note = fmt.Sprintf("Provider %s is not configured", code)
		return
	}
	sku := ""
	if offer := offerFor(item.Variant, code); offer != nil {
		sku = offer.ProviderSKU
	}
	refID := providers.RefID(order.InvoiceCode, item.ID)
	checker, canCheck := gateway.(providers.StatusChecker)

	var (
		result providers.Result
		err    error
	)
	switch {
	case trxID != "" && canCheck:
		result, err = e.call(ctx, code, func(callCtx context.Context) (providers.Result, error) {
			return checker.CheckStatus(callCtx, providers.StatusQuery{
				SKU:    sku,
				Target: strings.TrimSpace(*item.Target),
				RefID:  refID,
				TrxID:  trxID,
			})
		})
	case trxID != "" || sku == "":
		report.Note = noteAwaitingVendor
		return
	default:
		result, err = e.dispatch(ctx, gateway, providers.Request{
			SKU:      sku,
			Target:   strings.TrimSpace(*item.Target),
			RefID:    refID,
			Quantity: item.Quantity,
		})
	}
	if err != nil {
		report.Error = err.Error()
		return
	}
	if result.Status == enums.ProviderStatusPending && (result.TrxID == "" || result.TrxID == trxID) {
		report.Note = firstNonEmpty(strings.TrimSpace(result.Message), noteAwaitingVendor)
		return
	}
	if result.TrxID == "" {
		result.TrxID = trxID
	}
	e.persist(ctx, order, item, report, e.outcomeFrom(code, result), actor)
}

func (e *engine) outcomeFrom(code enums.ProviderCode, result providers.Result) orders.ItemOutcome {
	outcome := orders.ItemOutcome{ProviderCode: &code, Status: result.Status}
	if result.TrxID != "" {
		outcome.TrxID = ptr(result.TrxID)
	}
	if result.SN != "" {
		outcome.SN = ptr(result.SN)
	}
	if result.Status == enums.ProviderStatusSuccess {
		now := e.now()
		outcome.FulfilledAt = &now
	} else if msg := strings.TrimSpace(result.Message); msg != "" {
		outcome.Note = ptr(msg)
	}
	return outcome
}

// dispatch calls the vendor with a bounded timeout. Panics and transport
// errors come back as errors so one item never aborts the order.
func (e *engine) dispatch(ctx context.Context, gateway providers.Gateway, req providers.Request) (providers.Result, error) {
	return e.call(ctx, gateway.Code(), func(callCtx context.Context) (providers.Result, error) {
		return gateway.Dispatch(callCtx, req)
	})
}

func (e *engine) call(ctx context.Context, code enums.ProviderCode, fn func(context.Context) (providers.Result, error)) (result providers.Result, err error) {
	callCtx, cancel := context.WithTimeout(ctx, e.vendorTimeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vendor adapter panic: %v", r)
		}
		status := string(result.Status)
		if err != nil {
			status = "error"
		}
		e.metrics.ObserveDispatch(code.String(), status, time.Since(start))
	}()

	result, err = fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%s: %w", noteVendorNoResponse, err)
	}
	return result, err
}

// persist writes an outcome in its own transaction.
func (e *engine) persist(ctx context.Context, order *models.Order, item *models.OrderItem, report *ItemReport, outcome orders.ItemOutcome, actor *outbox.ActorRef) {
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.record(ctx, tx, order, item, report, outcome, actor)
	})
	switch {
	case err == nil:
	case errors.Is(err, errAlreadyFulfilled):
		report.Skipped = true
		report.Outcome = ptr(enums.ProviderStatusSuccess)
	default:
		report.Error = err.Error()
		e.logg.Error(ctx, "failed to persist item outcome", err)
	}
}

// record saves the outcome, bumps the sold counter on success and emits
// order_item_fulfilled, all in tx.
func (e *engine) record(ctx context.Context, tx *gorm.DB, order *models.Order, item *models.OrderItem, report *ItemReport, outcome orders.ItemOutcome, actor *outbox.ActorRef) error {
	repo := e.orders.WithTx(tx)
	saved, err := repo.SaveItemOutcome(ctx, item.ID, outcome)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save item outcome")
	}
	if !saved {
		return errAlreadyFulfilled
	}
	if outcome.Status == enums.ProviderStatusSuccess && item.Variant != nil {
		if err := repo.IncrementSold(ctx, item.Variant.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment sold")
		}
	}
	if err := e.emit(ctx, tx, order.ID, enums.EventOrderItemFulfilled, actor, e.now(), payloads.OrderItemFulfilledEvent{
		OrderID:     order.ID,
		OrderItemID: item.ID,
		InvoiceCode: order.InvoiceCode,
		Path:        string(report.Path),
		Outcome:     outcome.Status,
		Provider:    outcome.ProviderCode,
		TrxID:       outcome.TrxID,
	}); err != nil {
		return err
	}

	report.Outcome = ptr(outcome.Status)
	if outcome.ProviderCode != nil {
		report.Provider = outcome.ProviderCode
	}
	if outcome.TrxID != nil {
		report.TrxID = *outcome.TrxID
	}
	if outcome.Note != nil {
		report.Note = *outcome.Note
	}
	return nil
}

// resolveOffer picks the active mapping of the cached best provider and falls
// back to the first active mapping.
func resolveOffer(variant *models.ProductVariant) *models.VariantProvider {
	if variant == nil {
		return nil
	}
	if variant.BestProvider != nil {
		for i := range variant.Providers {
			offer := &variant.Providers[i]
			if offer.IsActive && offer.ProviderCode == *variant.BestProvider {
				return offer
			}
		}
	}
	for i := range variant.Providers {
		if variant.Providers[i].IsActive {
			return &variant.Providers[i]
		}
	}
	return nil
}

// offerFor returns the mapping of one vendor, active or not.
func offerFor(variant *models.ProductVariant, code enums.ProviderCode) *models.VariantProvider {
	if variant == nil {
		return nil
	}
	for i := range variant.Providers {
		if variant.Providers[i].ProviderCode == code {
			return &variant.Providers[i]
		}
	}
	return nil
}

// dataError reports an item that already failed on bad order data. Those
// failures are terminal and are not retried on later runs.
func dataError(item *models.OrderItem) bool {
	if !item.Failed() || item.Note == nil {
		return false
	}
	switch *item.Note {
	case noteTargetMissing, noteNoMapping, noteVariantMissing, providers.MsgSingleUnit:
		return true
	}
	return false
}

func outcomeFailed(code *enums.ProviderCode, note string) orders.ItemOutcome {
	return orders.ItemOutcome{
		ProviderCode: code,
		Status:       enums.ProviderStatusFailed,
		Note:         ptr(note),
	}
}

func insufficientNote(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		if details, ok := typed.Details().(map[string]any); ok {
			return fmt.Sprintf("Insufficient stock: requested %v, available %v", details["requested"], details["available"])
		}
		return typed.Message()
	}
	return err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
