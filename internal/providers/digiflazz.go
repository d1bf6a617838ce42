package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
)

// Digiflazz sells pulsa, data and game top-ups, one unit per transaction.
type Digiflazz struct {
	client   httpClient
	username string
	apiKey   string
	testing  bool
}

// NewDigiflazz builds the adapter from its credentials.
func NewDigiflazz(cfg config.DigiflazzConfig, opts ...Option) (*Digiflazz, error) {
	if !cfg.Enabled() {
		return nil, errors.New("digiflazz username and api key are required")
	}
	return &Digiflazz{
		client:   newHTTPClient("digiflazz", cfg.BaseURL, opts...),
		username: cfg.Username,
		apiKey:   cfg.APIKey,
		testing:  cfg.Testing,
	}, nil
}

func (d *Digiflazz) Code() enums.ProviderCode {
	return enums.ProviderDigiflazz
}

type digiflazzTransaction struct {
	Username     string `json:"username"`
	BuyerSKUCode string `json:"buyer_sku_code"`
	CustomerNo   string `json:"customer_no"`
	RefID        string `json:"ref_id"`
	Sign         string `json:"sign"`
	Testing      bool   `json:"testing,omitempty"`
}

type digiflazzTransactionResponse struct {
	Data struct {
		RefID   string `json:"ref_id"`
		Status  string `json:"status"`
		RC      string `json:"rc"`
		SN      string `json:"sn"`
		Message string `json:"message"`
	} `json:"data"`
}

func (d *Digiflazz) Dispatch(ctx context.Context, req Request) (Result, error) {
	if req.Quantity > 1 {
		return failed(MsgSingleUnit), nil
	}
	return d.transact(ctx, req.SKU, req.Target, req.RefID)
}

// CheckStatus re-posts the transaction under its original ref_id. Digiflazz
// answers a known ref_id with the existing transaction instead of a new one.
func (d *Digiflazz) CheckStatus(ctx context.Context, query StatusQuery) (Result, error) {
	if strings.TrimSpace(query.RefID) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "digiflazz status check needs a ref_id")
	}
	return d.transact(ctx, query.SKU, query.Target, query.RefID)
}

func (d *Digiflazz) transact(ctx context.Context, sku, rawTarget, refID string) (Result, error) {
	target := ParseGameTarget(rawTarget)
	body := digiflazzTransaction{
		Username:     d.username,
		BuyerSKUCode: sku,
		CustomerNo:   target.Joined(),
		RefID:        refID,
		Sign:         signMD5(d.username, d.apiKey, refID),
		Testing:      d.testing,
	}
	var resp digiflazzTransactionResponse
	if err := d.client.postJSON(ctx, "/transaction", body, &resp); err != nil {
		return Result{}, err
	}

	status, known := NormalizeStatus(resp.Data.Status)
	message := resp.Data.Message
	if !known {
		message = strings.TrimSpace("unrecognized status " + resp.Data.Status + ": " + message)
	}
	return Result{
		Status:  status,
		TrxID:   firstNonEmpty(resp.Data.RefID, refID),
		SN:      resp.Data.SN,
		Message: message,
	}, nil
}

type digiflazzPriceListResponse struct {
	Data []struct {
		ProductName         string          `json:"product_name"`
		BuyerSKUCode        string          `json:"buyer_sku_code"`
		Price               decimal.Decimal `json:"price"`
		BuyerProductStatus  bool            `json:"buyer_product_status"`
		SellerProductStatus bool            `json:"seller_product_status"`
	} `json:"data"`
}

// PriceList fetches the prepaid catalog.
func (d *Digiflazz) PriceList(ctx context.Context) ([]Offer, error) {
	body := map[string]string{
		"cmd":      "prepaid",
		"username": d.username,
		"sign":     signMD5(d.username, d.apiKey, "pricelist"),
	}
	var resp digiflazzPriceListResponse
	if err := d.client.postJSON(ctx, "/price-list", body, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeVendor, "digiflazz price list is empty")
	}
	offers := make([]Offer, 0, len(resp.Data))
	for _, row := range resp.Data {
		offers = append(offers, Offer{
			SKU:    row.BuyerSKUCode,
			Name:   row.ProductName,
			Price:  row.Price.Ceil().IntPart(),
			Active: row.BuyerProductStatus && row.SellerProductStatus,
		})
	}
	return offers, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
