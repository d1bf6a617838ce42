package providers

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/enums"
)

// TokoVoucher sells game vouchers addressed by user id and server id.
type TokoVoucher struct {
	client     httpClient
	memberCode string
	secret     string
}

// NewTokoVoucher builds the adapter from its credentials.
func NewTokoVoucher(cfg config.TokoVoucherConfig, opts ...Option) (*TokoVoucher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("tokovoucher member code and secret are required")
	}
	return &TokoVoucher{
		client:     newHTTPClient("tokovoucher", cfg.BaseURL, opts...),
		memberCode: cfg.MemberCode,
		secret:     cfg.Secret,
	}, nil
}

func (t *TokoVoucher) Code() enums.ProviderCode {
	return enums.ProviderTokoVoucher
}

type tokoVoucherResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ErrorMsg string `json:"error_msg"`
	SN       string `json:"sn"`
	RefID    string `json:"ref_id"`
	TrxID    string `json:"trx_id"`
}

func (t *TokoVoucher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if req.Quantity > 1 {
		return failed(MsgSingleUnit), nil
	}
	target := ParseGameTarget(req.Target)
	query := url.Values{}
	query.Set("ref_id", req.RefID)
	query.Set("produk", req.SKU)
	query.Set("tujuan", target.UserID)
	query.Set("server_id", target.ServerID)
	query.Set("member_code", t.memberCode)
	query.Set("signature", signMD5(t.memberCode, ":", t.secret, ":", req.RefID))

	return t.call(ctx, "/transaksi", query, req.RefID)
}

// CheckStatus queries an accepted transaction by its ref_id.
func (t *TokoVoucher) CheckStatus(ctx context.Context, query StatusQuery) (Result, error) {
	values := url.Values{}
	values.Set("ref_id", query.RefID)
	values.Set("member_code", t.memberCode)
	values.Set("signature", signMD5(t.memberCode, ":", t.secret, ":", query.RefID))
	return t.call(ctx, "/transaksi/status", values, query.RefID)
}

func (t *TokoVoucher) call(ctx context.Context, path string, query url.Values, refID string) (Result, error) {
	var resp tokoVoucherResponse
	if err := t.client.get(ctx, path, query, &resp); err != nil {
		return Result{}, err
	}

	status, known := NormalizeStatus(resp.Status)
	message := firstNonEmpty(resp.Message, resp.ErrorMsg)
	if !known {
		message = strings.TrimSpace("unrecognized status " + resp.Status + ": " + message)
	}
	return Result{
		Status:  status,
		TrxID:   firstNonEmpty(resp.TrxID, resp.RefID, refID),
		SN:      resp.SN,
		Message: message,
	}, nil
}
