package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/db"
	"github.com/vouchr/storefront-backend/pkg/db/dbtest"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/outbox"
)

func newCatalog(t *testing.T, margin int64) (*gorm.DB, *dbtest.Fixtures, Service) {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(conn),
		Tx:            db.Wrap(conn),
		Outbox:        outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:        logger.Nop(),
		MarginPercent: decimal.NewFromInt(margin),
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return conn, dbtest.Seed(t, conn), svc
}

func loadVariant(t *testing.T, conn *gorm.DB, id uuid.UUID) models.ProductVariant {
	t.Helper()
	var variant models.ProductVariant
	require.NoError(t, conn.First(&variant, "id = ?", id).Error)
	return variant
}

func TestResalePrice(t *testing.T) {
	cases := []struct {
		cost   int64
		margin string
		want   int64
	}{
		{cost: 900, margin: "10", want: 990},
		{cost: 1001, margin: "10", want: 1102},
		{cost: 1000, margin: "0", want: 1000},
		{cost: 333, margin: "7.5", want: 358},
	}
	for _, tc := range cases {
		got := ResalePrice(tc.cost, decimal.RequireFromString(tc.margin))
		if got != tc.want {
			t.Fatalf("ResalePrice(%d, %s) = %d, want %d", tc.cost, tc.margin, got, tc.want)
		}
	}
}

func TestRecomputePicksCheapestActiveOffer(t *testing.T) {
	conn, seed, svc := newCatalog(t, 10)
	product := seed.Product(enums.CategoryGame)
	variant := seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	seed.Offer(variant.ID, enums.ProviderDigiflazz, "A-SKU", 1000, true)
	seed.Offer(variant.ID, enums.ProviderTokoVoucher, "B-SKU", 900, true)
	seed.Offer(variant.ID, enums.ProviderAPIGames, "C-SKU", 800, false)

	routing, err := svc.RecomputeBestProvider(context.Background(), variant.ID)
	require.NoError(t, err)
	require.NotNil(t, routing.BestProvider)
	assert.Equal(t, enums.ProviderTokoVoucher, *routing.BestProvider)
	assert.Equal(t, int64(990), routing.Price)
	assert.True(t, routing.Changed)

	stored := loadVariant(t, conn, variant.ID)
	require.NotNil(t, stored.BestProvider)
	assert.Equal(t, enums.ProviderTokoVoucher, *stored.BestProvider)
	assert.Equal(t, int64(900), stored.OriginalPrice)
	assert.Equal(t, int64(990), stored.Price)
	require.NotNil(t, stored.SKU)
	assert.Equal(t, "B-SKU", *stored.SKU)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventBestProviderChanged).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	again, err := svc.RecomputeBestProvider(context.Background(), variant.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventBestProviderChanged).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestRecomputeTieGoesToFirstInserted(t *testing.T) {
	_, seed, svc := newCatalog(t, 10)
	product := seed.Product(enums.CategoryPulsa)
	variant := seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	seed.Offer(variant.ID, enums.ProviderMedanPedia, "M-1", 500, true)
	seed.Offer(variant.ID, enums.ProviderDigiflazz, "D-1", 500, true)

	routing, err := svc.RecomputeBestProvider(context.Background(), variant.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProviderMedanPedia, *routing.BestProvider)
}

func TestRecomputeWithoutActiveOffersKeepsPreviousRoute(t *testing.T) {
	conn, seed, svc := newCatalog(t, 10)
	product := seed.Product(enums.CategoryGame)
	variant := seed.Variant(product.ID, dbtest.Ptr(enums.ProviderDigiflazz), enums.DeliveryAutomated)
	seed.Offer(variant.ID, enums.ProviderDigiflazz, "D-1", 700, false)

	routing, err := svc.RecomputeBestProvider(context.Background(), variant.ID)
	require.NoError(t, err)
	assert.True(t, routing.Stale)
	require.NotNil(t, routing.BestProvider)
	assert.Equal(t, enums.ProviderDigiflazz, *routing.BestProvider)

	stored := loadVariant(t, conn, variant.ID)
	require.NotNil(t, stored.BestProvider)
	assert.Equal(t, enums.ProviderDigiflazz, *stored.BestProvider)
}

func TestRecomputeUnknownVariant(t *testing.T) {
	_, _, svc := newCatalog(t, 10)
	_, err := svc.RecomputeBestProvider(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestUpsertProviderOfferIsKeyedByCodeAndSKU(t *testing.T) {
	conn, seed, svc := newCatalog(t, 10)
	product := seed.Product(enums.CategoryGame)
	variant := seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	ctx := context.Background()

	first, err := svc.UpsertProviderOffer(ctx, OfferInput{
		VariantID: variant.ID, ProviderCode: enums.ProviderDigiflazz, ProviderSKU: "ML86", Price: 19000, Active: true,
	})
	require.NoError(t, err)

	second, err := svc.UpsertProviderOffer(ctx, OfferInput{
		VariantID: variant.ID, ProviderCode: enums.ProviderDigiflazz, ProviderSKU: " ML86 ", Price: 18500, Active: false,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(18500), second.Price)
	assert.False(t, second.IsActive)
	assert.False(t, second.LastUpdated.Before(first.LastUpdated))

	var count int64
	require.NoError(t, conn.Model(&models.VariantProvider{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = svc.UpsertProviderOffer(ctx, OfferInput{VariantID: variant.ID, ProviderCode: "NOPE", ProviderSKU: "x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = svc.UpsertProviderOffer(ctx, OfferInput{VariantID: uuid.New(), ProviderCode: enums.ProviderDigiflazz, ProviderSKU: "x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestSyncOffersUpdatesDeactivatesAndRecomputes(t *testing.T) {
	conn, seed, svc := newCatalog(t, 10)
	product := seed.Product(enums.CategoryGame)
	ml := seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	ff := seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	seed.Offer(ml.ID, enums.ProviderDigiflazz, "ML86", 20000, true)
	seed.Offer(ml.ID, enums.ProviderAPIGames, "MLBB86", 19800, true)
	seed.Offer(ff.ID, enums.ProviderDigiflazz, "FF100", 14000, true)

	summary, err := svc.SyncOffers(context.Background(), enums.ProviderDigiflazz, []Quote{
		{SKU: "ML86", Price: 19000, Active: true},
		{SKU: "UNKNOWN", Price: 1, Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Deactivated)
	assert.Equal(t, 2, summary.Recomputed)

	mlStored := loadVariant(t, conn, ml.ID)
	require.NotNil(t, mlStored.BestProvider)
	assert.Equal(t, enums.ProviderDigiflazz, *mlStored.BestProvider)
	assert.Equal(t, int64(19000), mlStored.OriginalPrice)

	var ffOffer models.VariantProvider
	require.NoError(t, conn.First(&ffOffer, "provider_sku = ?", "FF100").Error)
	assert.False(t, ffOffer.IsActive)

	var unknown int64
	require.NoError(t, conn.Model(&models.VariantProvider{}).Where("provider_sku = ?", "UNKNOWN").Count(&unknown).Error)
	assert.Equal(t, int64(0), unknown)
}

func TestSyncOffersRefreshesConfirmedOffers(t *testing.T) {
	conn := dbtest.NewSQLite(t)
	seed := dbtest.Seed(t, conn)
	syncedAt := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(conn),
		Tx:            db.Wrap(conn),
		Outbox:        outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:        logger.Nop(),
		MarginPercent: decimal.NewFromInt(10),
		Now:           func() time.Time { return syncedAt },
	})
	require.NoError(t, err)

	product := seed.Product(enums.CategoryGame)
	variant := seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	offer := seed.Offer(variant.ID, enums.ProviderDigiflazz, "ML86", 19000, true)

	summary, err := svc.SyncOffers(context.Background(), enums.ProviderDigiflazz, []Quote{
		{SKU: "ML86", Price: 19000, Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Confirmed)
	assert.Equal(t, 0, summary.Recomputed, "an unchanged quote does not reroute")

	var stored models.VariantProvider
	require.NoError(t, conn.First(&stored, "id = ?", offer.ID).Error)
	assert.True(t, stored.LastUpdated.After(offer.LastUpdated))
	assert.True(t, stored.LastUpdated.Equal(syncedAt), "got %s", stored.LastUpdated)
	assert.Equal(t, int64(19000), stored.Price)
}
