package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
)

// APIGames sells direct game top-ups.
type APIGames struct {
	client     httpClient
	merchantID string
	secretKey  string
}

// NewAPIGames builds the adapter from its credentials.
func NewAPIGames(cfg config.APIGamesConfig, opts ...Option) (*APIGames, error) {
	if !cfg.Enabled() {
		return nil, errors.New("apigames merchant id and secret key are required")
	}
	return &APIGames{
		client:     newHTTPClient("apigames", cfg.BaseURL, opts...),
		merchantID: cfg.MerchantID,
		secretKey:  cfg.SecretKey,
	}, nil
}

func (a *APIGames) Code() enums.ProviderCode {
	return enums.ProviderAPIGames
}

type apiGamesTransaction struct {
	RefID      string `json:"ref_id"`
	MerchantID string `json:"merchant_id"`
	Produk     string `json:"produk"`
	Tujuan     string `json:"tujuan"`
	ServerID   string `json:"server_id"`
	Signature  string `json:"signature"`
}

// apiGamesResponse carries a numeric envelope status: 1 means the request was
// accepted and data.status holds the transaction outcome.
type apiGamesResponse struct {
	Status   int    `json:"status"`
	RC       int    `json:"rc"`
	ErrorMsg string `json:"error_msg"`
	Data     struct {
		RefID   string `json:"ref_id"`
		Status  string `json:"status"`
		TrxID   string `json:"trx_id"`
		SN      string `json:"sn"`
		Message string `json:"message"`
	} `json:"data"`
}

func (a *APIGames) Dispatch(ctx context.Context, req Request) (Result, error) {
	if req.Quantity > 1 {
		return failed(MsgSingleUnit), nil
	}
	target := ParseGameTarget(req.Target)
	body := apiGamesTransaction{
		RefID:      req.RefID,
		MerchantID: a.merchantID,
		Produk:     req.SKU,
		Tujuan:     target.UserID,
		ServerID:   target.ServerID,
		Signature:  signMD5(a.merchantID, ":", a.secretKey, ":", req.RefID),
	}
	var resp apiGamesResponse
	if err := a.client.postJSON(ctx, "/v2/transaksi", body, &resp); err != nil {
		return Result{}, err
	}
	if resp.Status != 1 {
		return failed(firstNonEmpty(resp.ErrorMsg, "apigames rejected the request")), nil
	}
	return resp.result(req.RefID), nil
}

type apiGamesStatusQuery struct {
	RefID      string `json:"ref_id"`
	MerchantID string `json:"merchant_id"`
	Signature  string `json:"signature"`
}

// CheckStatus queries an accepted transaction by its ref_id.
func (a *APIGames) CheckStatus(ctx context.Context, query StatusQuery) (Result, error) {
	body := apiGamesStatusQuery{
		RefID:      query.RefID,
		MerchantID: a.merchantID,
		Signature:  signMD5(a.merchantID, ":", a.secretKey, ":", query.RefID),
	}
	var resp apiGamesResponse
	if err := a.client.postJSON(ctx, "/v2/transaksi/status", body, &resp); err != nil {
		return Result{}, err
	}
	// an unknown ref_id is not proof the item failed
	if resp.Status != 1 {
		return Result{}, pkgerrors.New(pkgerrors.CodeVendor, firstNonEmpty(resp.ErrorMsg, "apigames status unavailable"))
	}
	return resp.result(query.RefID), nil
}

func (resp apiGamesResponse) result(refID string) Result {
	status, known := NormalizeStatus(resp.Data.Status)
	message := resp.Data.Message
	if !known {
		message = strings.TrimSpace("unrecognized status " + resp.Data.Status + ": " + message)
	}
	return Result{
		Status:  status,
		TrxID:   firstNonEmpty(resp.Data.TrxID, resp.Data.RefID, refID),
		SN:      resp.Data.SN,
		Message: message,
	}
}
