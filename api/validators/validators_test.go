package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
)

type restockBody struct {
	Contents []string `json:"contents" validate:"required,min=1"`
	Note     string   `json:"note" validate:"max=8"`
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"contents":["a"],"extra":1}`))
	var body restockBody
	err := DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"contents":[],"note":"much too long"}`))
	var body restockBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be at least 1", details["contents"])
	require.Equal(t, "must be at most 8", details["note"])
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(&restockBody{Contents: []string{"code"}}))
	require.Error(t, ValidateStruct(&restockBody{}))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	value, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 25, value)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("orderId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "orderId", "order id")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "orderId", "order id")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDParam(withParam(""), "orderId", "order id")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeStringKeepsRuneBoundaries(t *testing.T) {
	require.Equal(t, "refund", SanitizeString("  refund  ", 255))
	require.Equal(t, "abc", SanitizeString("abcdef", 3))

	reason := strings.Repeat("a", 254) + "é tambahan"
	got := SanitizeString(reason, 255)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("a", 254), got)

	require.Equal(t, "ok", SanitizeString("ok\xff", 10))
	require.Equal(t, "日本", SanitizeString("日本語", 8))
}
