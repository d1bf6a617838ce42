package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
)

// MedanPedia is a social media engagement panel. Orders are accepted
// asynchronously, so a successful submission is PENDING.
type MedanPedia struct {
	client httpClient
	apiID  string
	apiKey string
}

// NewMedanPedia builds the adapter from its credentials.
func NewMedanPedia(cfg config.MedanPediaConfig, opts ...Option) (*MedanPedia, error) {
	if !cfg.Enabled() {
		return nil, errors.New("medanpedia api id and api key are required")
	}
	return &MedanPedia{
		client: newHTTPClient("medanpedia", cfg.BaseURL, opts...),
		apiID:  cfg.APIID,
		apiKey: cfg.APIKey,
	}, nil
}

func (m *MedanPedia) Code() enums.ProviderCode {
	return enums.ProviderMedanPedia
}

type medanPediaEnvelope struct {
	Status bool            `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type medanPediaMessage struct {
	Msg string `json:"msg"`
}

func (m *MedanPedia) credentials() url.Values {
	form := url.Values{}
	form.Set("api_id", m.apiID)
	form.Set("api_key", m.apiKey)
	return form
}

func (m *MedanPedia) Dispatch(ctx context.Context, req Request) (Result, error) {
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	target := ParseSosmedTarget(req.Target)
	form := m.credentials()
	form.Set("service", req.SKU)
	form.Set("target", target.URL)
	form.Set("quantity", strconv.Itoa(quantity))
	if target.Comments != "" {
		form.Set("comments", target.Comments)
	}

	var resp medanPediaEnvelope
	if err := m.client.postForm(ctx, "/order", form, &resp); err != nil {
		return Result{}, err
	}
	if !resp.Status {
		var msg medanPediaMessage
		_ = json.Unmarshal(resp.Data, &msg)
		return failed(firstNonEmpty(msg.Msg, "medanpedia rejected the order")), nil
	}

	var order struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &order); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeVendor, err, "decode medanpedia order")
	}
	return Result{
		Status:  enums.ProviderStatusPending,
		TrxID:   order.ID.String(),
		Message: "order accepted by medanpedia",
	}, nil
}

// CheckStatus polls an accepted order by the panel's order id.
func (m *MedanPedia) CheckStatus(ctx context.Context, query StatusQuery) (Result, error) {
	if query.TrxID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "medanpedia status check needs an order id")
	}
	form := m.credentials()
	form.Set("id", query.TrxID)

	var resp medanPediaEnvelope
	if err := m.client.postForm(ctx, "/status", form, &resp); err != nil {
		return Result{}, err
	}
	if !resp.Status {
		var msg medanPediaMessage
		_ = json.Unmarshal(resp.Data, &msg)
		return Result{}, pkgerrors.New(pkgerrors.CodeVendor, firstNonEmpty(msg.Msg, "medanpedia status unavailable"))
	}

	var order struct {
		Status     string      `json:"status"`
		StartCount json.Number `json:"start_count"`
		Remains    json.Number `json:"remains"`
	}
	if err := json.Unmarshal(resp.Data, &order); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeVendor, err, "decode medanpedia status")
	}
	status, known := NormalizeStatus(order.Status)
	message := "medanpedia order " + strings.ToLower(strings.TrimSpace(order.Status))
	if !known {
		message = strings.TrimSpace("unrecognized status " + order.Status)
	}
	if order.Remains != "" && order.Remains != "0" {
		message += ", remains " + order.Remains.String()
	}
	return Result{
		Status:  status,
		TrxID:   query.TrxID,
		Message: message,
	}, nil
}

// PriceList fetches the service catalog; prices are per the panel's unit batch.
func (m *MedanPedia) PriceList(ctx context.Context) ([]Offer, error) {
	var resp medanPediaEnvelope
	if err := m.client.postForm(ctx, "/services", m.credentials(), &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		var msg medanPediaMessage
		_ = json.Unmarshal(resp.Data, &msg)
		return nil, pkgerrors.New(pkgerrors.CodeVendor, firstNonEmpty(msg.Msg, "medanpedia services unavailable"))
	}

	var services []struct {
		ID     json.Number     `json:"id"`
		Name   string          `json:"name"`
		Price  decimal.Decimal `json:"price"`
		Status string          `json:"status"`
	}
	if err := json.Unmarshal(resp.Data, &services); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeVendor, err, "decode medanpedia services")
	}
	offers := make([]Offer, 0, len(services))
	for _, svc := range services {
		offers = append(offers, Offer{
			SKU:    svc.ID.String(),
			Name:   svc.Name,
			Price:  svc.Price.Ceil().IntPart(),
			Active: svc.Status == "" || svc.Status == "active" || svc.Status == "1",
		})
	}
	return offers, nil
}
