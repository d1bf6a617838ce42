package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/vouchr/storefront-backend/api/responses"
	"github.com/vouchr/storefront-backend/api/validators"
	paymentwebhook "github.com/vouchr/storefront-backend/internal/webhooks/payment"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

const maxCallbackBytes = 64 << 10

type PaymentWebhookService interface {
	HandleEvent(ctx context.Context, event paymentwebhook.Event) (*paymentwebhook.Outcome, error)
}

type paymentWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// PaymentWebhook handles payment gateway callbacks. A replayed event id is
// acknowledged without touching the order again.
func PaymentWebhook(svc PaymentWebhookService, guard paymentWebhookGuard, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if err := paymentwebhook.VerifySignature(secret, payload, r.Header.Get(paymentwebhook.SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var event paymentwebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback body"))
			return
		}
		if err := validators.ValidateStruct(&event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event_id": event.EventID,
				"status":   event.Status,
			})
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			if logg != nil {
				logg.Info(ctx, "payment callback replay ignored")
			}
			responses.WriteSuccess(w, map[string]bool{"duplicate": true})
			return
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			_ = guard.Delete(ctx, event.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
