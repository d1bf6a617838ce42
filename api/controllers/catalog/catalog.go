package catalog

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/api/responses"
	"github.com/vouchr/storefront-backend/api/validators"
	internalcatalog "github.com/vouchr/storefront-backend/internal/catalog"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

type catalogService interface {
	UpsertProviderOffer(ctx context.Context, input internalcatalog.OfferInput) (*models.VariantProvider, error)
	RecomputeBestProvider(ctx context.Context, variantID uuid.UUID) (*internalcatalog.Routing, error)
}

type syncRunner interface {
	Run(ctx context.Context) error
}

type offerRequest struct {
	VariantID    string `json:"variant_id" validate:"required,uuid"`
	ProviderCode string `json:"provider_code" validate:"required"`
	ProviderSKU  string `json:"provider_sku" validate:"required,max=128"`
	Price        int64  `json:"price" validate:"gte=0"`
	Active       *bool  `json:"active"`
}

type offerResponse struct {
	Offer   *models.VariantProvider  `json:"offer"`
	Routing *internalcatalog.Routing `json:"routing"`
}

// UpsertOffer stores a vendor offer and recomputes the variant's route.
func UpsertOffer(svc catalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		var req offerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID, err := uuid.Parse(req.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}
		code, err := enums.ParseProviderCode(strings.ToUpper(strings.TrimSpace(req.ProviderCode)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown provider code"))
			return
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}

		offer, err := svc.UpsertProviderOffer(r.Context(), internalcatalog.OfferInput{
			VariantID:    variantID,
			ProviderCode: code,
			ProviderSKU:  req.ProviderSKU,
			Price:        req.Price,
			Active:       active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		routing, err := svc.RecomputeBestProvider(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offerResponse{Offer: offer, Routing: routing})
	}
}

// Recompute re-evaluates the cheapest active vendor for a variant.
func Recompute(svc catalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		variantID, err := validators.ParseUUIDParam(r, "variantId", "variant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		routing, err := svc.RecomputeBestProvider(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, routing)
	}
}

// Sync pulls every configured vendor price feed now instead of waiting for cron.
func Sync(job syncRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog sync unavailable"))
			return
		}
		if err := job.Run(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeVendor, err, "catalog sync incomplete"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "synced"})
	}
}
