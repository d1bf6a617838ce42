package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/vouchr/storefront-backend/internal/catalog"
	"github.com/vouchr/storefront-backend/internal/providers"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

type offerSyncer interface {
	SyncOffers(ctx context.Context, code enums.ProviderCode, quotes []catalog.Quote) (*catalog.SyncSummary, error)
}

type CatalogSyncJobParams struct {
	Logger  *logger.Logger
	Catalog offerSyncer
	Listers []providers.PriceLister
}

// NewCatalogSyncJob builds the job that refreshes vendor prices from their
// price feeds and re-ranks providers.
func NewCatalogSyncJob(params CatalogSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	return &catalogSyncJob{
		logg:    params.Logger,
		catalog: params.Catalog,
		listers: params.Listers,
	}, nil
}

type catalogSyncJob struct {
	logg    *logger.Logger
	catalog offerSyncer
	listers []providers.PriceLister
}

func (j *catalogSyncJob) Name() string { return "catalog-sync" }

// Run syncs every vendor independently; one failing feed does not block the
// others.
func (j *catalogSyncJob) Run(ctx context.Context) error {
	var errs error
	for _, lister := range j.listers {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := j.syncOne(ctx, lister); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", lister.Code(), err))
		}
	}
	return errs
}

func (j *catalogSyncJob) syncOne(ctx context.Context, lister providers.PriceLister) error {
	ctx = j.logg.WithField(ctx, "provider", lister.Code().String())
	offers, err := lister.PriceList(ctx)
	if err != nil {
		return fmt.Errorf("fetch price list: %w", err)
	}
	if len(offers) == 0 {
		// an empty feed would deactivate every mapping of the vendor
		j.logg.Warn(ctx, "vendor returned an empty price list; skipping sync")
		return nil
	}

	quotes := make([]catalog.Quote, 0, len(offers))
	for _, offer := range offers {
		quotes = append(quotes, catalog.Quote{
			SKU:    offer.SKU,
			Name:   offer.Name,
			Price:  offer.Price,
			Active: offer.Active,
		})
	}
	summary, err := j.catalog.SyncOffers(ctx, lister.Code(), quotes)
	if err != nil {
		return fmt.Errorf("sync offers: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"feed_size":   len(quotes),
		"updated":     summary.Updated,
		"deactivated": summary.Deactivated,
		"recomputed":  summary.Recomputed,
	})
	j.logg.Info(logCtx, "catalog sync complete")
	return nil
}
