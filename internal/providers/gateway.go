// Package providers holds one adapter per upstream vendor. Each adapter owns
// its wire format and signing and reports outcomes in the canonical
// SUCCESS / PENDING / FAILED vocabulary.
package providers

import (
	"context"
	"strings"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// Request is a vendor-neutral dispatch.
type Request struct {
	SKU      string
	Target   string
	RefID    string
	Quantity int
}

// Result is the normalized vendor answer. Status is never INSUFFICIENT_INVENTORY.
type Result struct {
	Status  enums.ProviderStatus
	TrxID   string
	SN      string
	Message string
}

// Gateway delivers one order item through a vendor.
type Gateway interface {
	Code() enums.ProviderCode
	Dispatch(ctx context.Context, req Request) (Result, error)
}

// StatusQuery identifies a transaction already accepted by a vendor.
type StatusQuery struct {
	SKU    string
	Target string
	RefID  string
	TrxID  string
}

// StatusChecker is implemented by vendors that can report the state of an
// accepted transaction without placing a new one.
type StatusChecker interface {
	CheckStatus(ctx context.Context, query StatusQuery) (Result, error)
}

// Offer is one row of a vendor price feed.
type Offer struct {
	SKU    string
	Name   string
	Price  int64
	Active bool
}

// PriceLister is implemented by vendors that publish a price feed.
type PriceLister interface {
	Code() enums.ProviderCode
	PriceList(ctx context.Context) ([]Offer, error)
}

// NormalizeStatus maps the mixed English and Indonesian vendor vocabularies
// onto the canonical statuses. Unrecognized values are reported as PENDING so
// a possibly delivered item is never refunded.
func NormalizeStatus(raw string) (enums.ProviderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sukses", "success", "successful", "berhasil", "completed", "done":
		return enums.ProviderStatusSuccess, true
	case "pending", "proses", "process", "processing", "in progress", "validasi provider", "waiting":
		return enums.ProviderStatusPending, true
	case "gagal", "failed", "fail", "error", "canceled", "cancelled", "refund", "partial refund":
		return enums.ProviderStatusFailed, true
	}
	return enums.ProviderStatusPending, false
}

// MsgSingleUnit rejects a quantity above one on vendors that sell one unit
// per transaction. The rejection is terminal for the item.
const MsgSingleUnit = "Vendor delivers one unit per transaction"

func failed(message string) Result {
	return Result{Status: enums.ProviderStatusFailed, Message: message}
}
