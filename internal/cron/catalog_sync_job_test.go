package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vouchr/storefront-backend/internal/catalog"
	"github.com/vouchr/storefront-backend/internal/providers"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

type stubLister struct {
	code   enums.ProviderCode
	offers []providers.Offer
	err    error
}

func (s stubLister) Code() enums.ProviderCode { return s.code }

func (s stubLister) PriceList(context.Context) ([]providers.Offer, error) {
	return s.offers, s.err
}

type recordingSyncer struct {
	synced map[enums.ProviderCode][]catalog.Quote
}

func (r *recordingSyncer) SyncOffers(_ context.Context, code enums.ProviderCode, quotes []catalog.Quote) (*catalog.SyncSummary, error) {
	if r.synced == nil {
		r.synced = map[enums.ProviderCode][]catalog.Quote{}
	}
	r.synced[code] = quotes
	return &catalog.SyncSummary{Provider: code, Updated: len(quotes)}, nil
}

func TestCatalogSyncJobFeedsEveryLister(t *testing.T) {
	syncer := &recordingSyncer{}
	job, err := NewCatalogSyncJob(CatalogSyncJobParams{
		Logger:  logger.Nop(),
		Catalog: syncer,
		Listers: []providers.PriceLister{
			stubLister{code: enums.ProviderDigiflazz, err: errors.New("feed down")},
			stubLister{code: enums.ProviderMedanPedia, offers: []providers.Offer{
				{SKU: "301", Name: "IG Followers", Price: 1000, Active: true},
				{SKU: "302", Name: "IG Likes", Price: 400, Active: false},
			}},
			stubLister{code: enums.ProviderAPIGames},
		},
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DIGIFLAZZ")

	require.Len(t, syncer.synced, 1, "failing and empty feeds are not synced")
	quotes := syncer.synced[enums.ProviderMedanPedia]
	require.Len(t, quotes, 2)
	assert.Equal(t, catalog.Quote{SKU: "302", Name: "IG Likes", Price: 400, Active: false}, quotes[1])
}

func TestCatalogSyncJobName(t *testing.T) {
	job, err := NewCatalogSyncJob(CatalogSyncJobParams{Logger: logger.Nop(), Catalog: &recordingSyncer{}})
	require.NoError(t, err)
	assert.Equal(t, "catalog-sync", job.Name())
	assert.NoError(t, job.Run(context.Background()))

	_, err = NewCatalogSyncJob(CatalogSyncJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
