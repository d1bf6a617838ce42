package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/outbox"
	"github.com/vouchr/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service keeps vendor offers fresh and decides which vendor each variant
// routes to. Fulfillment only reads the result.
type Service interface {
	UpsertProviderOffer(ctx context.Context, input OfferInput) (*models.VariantProvider, error)
	RecomputeBestProvider(ctx context.Context, variantID uuid.UUID) (*Routing, error)
	SyncOffers(ctx context.Context, code enums.ProviderCode, quotes []Quote) (*SyncSummary, error)
}

// OfferInput is one vendor offer for a variant.
type OfferInput struct {
	VariantID    uuid.UUID
	ProviderCode enums.ProviderCode
	ProviderSKU  string
	Price        int64
	Active       bool
}

// Quote is one row of a vendor price feed.
type Quote struct {
	SKU    string
	Name   string
	Price  int64
	Active bool
}

// Routing is the outcome of a recompute. Stale means no active offer existed
// and the previous route was kept.
type Routing struct {
	VariantID     uuid.UUID           `json:"variant_id"`
	BestProvider  *enums.ProviderCode `json:"best_provider,omitempty"`
	ProviderSKU   string              `json:"provider_sku,omitempty"`
	OriginalPrice int64               `json:"original_price"`
	Price         int64               `json:"price"`
	Changed       bool                `json:"changed"`
	Stale         bool                `json:"stale"`
}

// SyncSummary counts what a feed sync touched.
type SyncSummary struct {
	Provider    enums.ProviderCode `json:"provider"`
	Updated     int                `json:"updated"`
	Confirmed   int                `json:"confirmed"`
	Deactivated int                `json:"deactivated"`
	Recomputed  int                `json:"recomputed"`
}

// ServiceParams groups the catalog dependencies.
type ServiceParams struct {
	Repo          Repository
	Tx            txRunner
	Outbox        outboxPublisher
	Logger        *logger.Logger
	MarginPercent decimal.Decimal
	Now           func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	margin decimal.Decimal
	now    func() time.Time
}

// NewService builds the catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.MarginPercent.IsNegative() {
		return nil, fmt.Errorf("margin percent must not be negative")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   logg,
		margin: params.MarginPercent,
		now:    now,
	}, nil
}

func (s *service) UpsertProviderOffer(ctx context.Context, input OfferInput) (*models.VariantProvider, error) {
	sku := strings.TrimSpace(input.ProviderSKU)
	switch {
	case input.VariantID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	case !input.ProviderCode.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown provider code")
	case sku == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider sku is required")
	case input.Price < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	var saved *models.VariantProvider
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindVariant(ctx, input.VariantID); err != nil {
			return mapVariantErr(err)
		}
		offer := &models.VariantProvider{
			VariantID:    input.VariantID,
			ProviderCode: input.ProviderCode,
			ProviderSKU:  sku,
			Price:        input.Price,
			IsActive:     input.Active,
			LastUpdated:  s.now(),
		}
		if err := repo.UpsertOffer(ctx, offer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert offer")
		}
		found, err := repo.FindOffer(ctx, input.ProviderCode, sku)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload offer")
		}
		saved = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) RecomputeBestProvider(ctx context.Context, variantID uuid.UUID) (*Routing, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}

	var routing *Routing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		variant, err := repo.LockVariant(ctx, variantID)
		if err != nil {
			return mapVariantErr(err)
		}
		offers, err := repo.ActiveOffers(ctx, variantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offers")
		}
		if len(offers) == 0 {
			routing = &Routing{
				VariantID:     variantID,
				BestProvider:  variant.BestProvider,
				OriginalPrice: variant.OriginalPrice,
				Price:         variant.Price,
				Stale:         true,
			}
			if variant.SKU != nil {
				routing.ProviderSKU = *variant.SKU
			}
			return nil
		}

		best := offers[0]
		update := RoutingUpdate{
			BestProvider:  best.ProviderCode,
			SKU:           best.ProviderSKU,
			OriginalPrice: best.Price,
			Price:         ResalePrice(best.Price, s.margin),
		}
		if err := repo.UpdateRouting(ctx, variantID, update); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update routing")
		}

		changed := variant.BestProvider == nil || *variant.BestProvider != best.ProviderCode
		if changed {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBestProviderChanged,
				AggregateType: enums.AggregateVariant,
				AggregateID:   variantID,
				Data: payloads.BestProviderChangedEvent{
					VariantID:     variantID,
					Previous:      variant.BestProvider,
					Current:       best.ProviderCode,
					OriginalPrice: update.OriginalPrice,
					Price:         update.Price,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit best provider changed")
			}
		}

		code := best.ProviderCode
		routing = &Routing{
			VariantID:     variantID,
			BestProvider:  &code,
			ProviderSKU:   best.ProviderSKU,
			OriginalPrice: update.OriginalPrice,
			Price:         update.Price,
			Changed:       changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"variant_id": variantID.String(),
		"changed":    routing.Changed,
		"stale":      routing.Stale,
	})
	if routing.Stale {
		s.logg.Warn(logCtx, "no active offers; keeping previous route")
	} else {
		s.logg.Debug(logCtx, "best provider recomputed")
	}
	return routing, nil
}

// SyncOffers refreshes the known mappings of one vendor from its feed.
// Mappings missing from the feed are deactivated; unknown feed SKUs are
// ignored. Every touched variant is recomputed.
func (s *service) SyncOffers(ctx context.Context, code enums.ProviderCode, quotes []Quote) (*SyncSummary, error) {
	if !code.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown provider code")
	}
	feed := make(map[string]Quote, len(quotes))
	for _, quote := range quotes {
		feed[strings.TrimSpace(quote.SKU)] = quote
	}

	summary := &SyncSummary{Provider: code}
	var touched []uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		offers, err := repo.OffersByProvider(ctx, code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider offers")
		}
		seen := make(map[uuid.UUID]struct{})
		var confirmed []uuid.UUID
		now := s.now()
		for _, offer := range offers {
			quote, ok := feed[offer.ProviderSKU]
			switch {
			case ok:
				if quote.Price == offer.Price && quote.Active == offer.IsActive {
					confirmed = append(confirmed, offer.ID)
					continue
				}
				if err := repo.UpdateOfferQuote(ctx, offer.ID, quote.Price, quote.Active, now); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update offer")
				}
				summary.Updated++
			case offer.IsActive:
				if err := repo.UpdateOfferQuote(ctx, offer.ID, offer.Price, false, now); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate offer")
				}
				summary.Deactivated++
			default:
				continue
			}
			if _, dup := seen[offer.VariantID]; !dup {
				seen[offer.VariantID] = struct{}{}
				touched = append(touched, offer.VariantID)
			}
		}
		if err := repo.TouchOffers(ctx, confirmed, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch confirmed offers")
		}
		summary.Confirmed = len(confirmed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var errs error
	for _, variantID := range touched {
		if _, err := s.RecomputeBestProvider(ctx, variantID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recompute %s: %w", variantID, err))
			continue
		}
		summary.Recomputed++
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"provider":    code,
		"updated":     summary.Updated,
		"confirmed":   summary.Confirmed,
		"deactivated": summary.Deactivated,
		"recomputed":  summary.Recomputed,
	})
	s.logg.Info(logCtx, "provider offers synced")
	return summary, errs
}

func mapVariantErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
}
