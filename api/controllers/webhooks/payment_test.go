package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	paymentwebhook "github.com/vouchr/storefront-backend/internal/webhooks/payment"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
)

const testSecret = "cb_test_secret"

type fakePaymentService struct {
	calls int
	last  paymentwebhook.Event
	err   error
}

func (f *fakePaymentService) HandleEvent(_ context.Context, event paymentwebhook.Event) (*paymentwebhook.Outcome, error) {
	f.calls++
	f.last = event
	if f.err != nil {
		return nil, f.err
	}
	return &paymentwebhook.Outcome{OrderID: uuid.New(), InvoiceCode: event.InvoiceCode, Status: enums.OrderStatusDelivered}, nil
}

type memoryGuard struct {
	seen    map[string]bool
	deleted []string
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{seen: map[string]bool{}}
}

func (g *memoryGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *memoryGuard) Delete(_ context.Context, eventID string) error {
	delete(g.seen, eventID)
	g.deleted = append(g.deleted, eventID)
	return nil
}

func signedRequest(body, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewBufferString(body))
	req.Header.Set(paymentwebhook.SignatureHeader, paymentwebhook.Sign(secret, []byte(body)))
	return req
}

const paidBody = `{"event_id":"evt_1","invoice_code":"INV-1","status":"PAID","amount":11000,"channel":"QRIS"}`

func TestPaymentWebhookProcessesOnce(t *testing.T) {
	svc := &fakePaymentService{}
	guard := newMemoryGuard()
	handler := PaymentWebhook(svc, guard, testSecret, nil)

	rec := httptest.NewRecorder()
	handler(rec, signedRequest(paidBody, testSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, svc.calls)
	require.Equal(t, int64(11000), svc.last.Amount)
	require.Contains(t, rec.Body.String(), `"status":"DELIVERED"`)

	replay := httptest.NewRecorder()
	handler(replay, signedRequest(paidBody, testSecret))
	require.Equal(t, http.StatusOK, replay.Code)
	require.Equal(t, 1, svc.calls)
	require.Contains(t, replay.Body.String(), `"duplicate":true`)
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakePaymentService{}
	rec := httptest.NewRecorder()
	PaymentWebhook(svc, newMemoryGuard(), testSecret, nil)(rec, signedRequest(paidBody, "wrong"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, svc.calls)

	unsigned := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(paidBody))
	rec = httptest.NewRecorder()
	PaymentWebhook(svc, newMemoryGuard(), testSecret, nil)(rec, unsigned)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentWebhookValidatesBody(t *testing.T) {
	svc := &fakePaymentService{}
	body := `{"event_id":"evt_2","status":"PAID","amount":1}`
	rec := httptest.NewRecorder()
	PaymentWebhook(svc, newMemoryGuard(), testSecret, nil)(rec, signedRequest(body, testSecret))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, svc.calls)
}

func TestPaymentWebhookReleasesGuardOnFailure(t *testing.T) {
	svc := &fakePaymentService{err: pkgerrors.New(pkgerrors.CodeConflict, "amount mismatch")}
	guard := newMemoryGuard()
	rec := httptest.NewRecorder()
	PaymentWebhook(svc, guard, testSecret, nil)(rec, signedRequest(paidBody, testSecret))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, []string{"evt_1"}, guard.deleted)

	svc.err = nil
	rec = httptest.NewRecorder()
	PaymentWebhook(svc, guard, testSecret, nil)(rec, signedRequest(paidBody, testSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, svc.calls)
}

type failingGuard struct{}

func (failingGuard) CheckAndMark(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingGuard) Delete(context.Context, string) error { return nil }

func TestPaymentWebhookGuardUnavailable(t *testing.T) {
	svc := &fakePaymentService{}
	rec := httptest.NewRecorder()
	PaymentWebhook(svc, failingGuard{}, testSecret, nil)(rec, signedRequest(paidBody, testSecret))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Zero(t, svc.calls)
}
