package stock

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/api/responses"
	"github.com/vouchr/storefront-backend/api/validators"
	internalstock "github.com/vouchr/storefront-backend/internal/stock"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

type stockPool interface {
	AddStock(ctx context.Context, input internalstock.AddStockInput) (int, error)
	Available(ctx context.Context, variantID uuid.UUID) (int64, error)
}

type restockRequest struct {
	Contents  []string   `json:"contents" validate:"required,min=1,max=5000"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type stockLevel struct {
	VariantID uuid.UUID `json:"variant_id"`
	Added     int       `json:"added,omitempty"`
	Available int64     `json:"available"`
}

// Restock adds credentials to a variant's pool.
func Restock(pool stockPool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock pool unavailable"))
			return
		}
		variantID, err := validators.ParseUUIDParam(r, "variantId", "variant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		added, err := pool.AddStock(r.Context(), internalstock.AddStockInput{
			VariantID: variantID,
			Contents:  req.Contents,
			ExpiresAt: req.ExpiresAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := pool.Available(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, stockLevel{VariantID: variantID, Added: added, Available: available})
	}
}

// Level reports how many unexpired credentials remain for a variant.
func Level(pool stockPool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock pool unavailable"))
			return
		}
		variantID, err := validators.ParseUUIDParam(r, "variantId", "variant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := pool.Available(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stockLevel{VariantID: variantID, Available: available})
	}
}
