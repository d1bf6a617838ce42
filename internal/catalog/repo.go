package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vouchr/storefront-backend/internal/repo"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
)

// Repository persists vendor offers and the routing columns of variants.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error)
	LockVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error)
	UpsertOffer(ctx context.Context, offer *models.VariantProvider) error
	FindOffer(ctx context.Context, code enums.ProviderCode, sku string) (*models.VariantProvider, error)
	ActiveOffers(ctx context.Context, variantID uuid.UUID) ([]models.VariantProvider, error)
	OffersByProvider(ctx context.Context, code enums.ProviderCode) ([]models.VariantProvider, error)
	UpdateOfferQuote(ctx context.Context, offerID uuid.UUID, price int64, active bool, at time.Time) error
	TouchOffers(ctx context.Context, offerIDs []uuid.UUID, at time.Time) error
	UpdateRouting(ctx context.Context, variantID uuid.UUID, routing RoutingUpdate) error
}

// RoutingUpdate is written back to the variant after a recompute.
type RoutingUpdate struct {
	BestProvider  enums.ProviderCode
	SKU           string
	OriginalPrice int64
	Price         int64
}

type repository struct {
	repo.Base
}

// NewRepository returns a catalog repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.DB(ctx).Preload("Providers").Where("id = ?", variantID).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) LockVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.ForUpdate(ctx).Where("id = ?", variantID).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// UpsertOffer inserts or refreshes the offer keyed by (provider_code, provider_sku).
func (r *repository) UpsertOffer(ctx context.Context, offer *models.VariantProvider) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_code"}, {Name: "provider_sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"variant_id", "price", "is_active", "last_updated"}),
	}).Create(offer).Error
}

func (r *repository) FindOffer(ctx context.Context, code enums.ProviderCode, sku string) (*models.VariantProvider, error) {
	var offer models.VariantProvider
	err := r.DB(ctx).
		Where("provider_code = ? AND provider_sku = ?", code, sku).
		First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// ActiveOffers orders by price, then insertion, so the first row is the route.
func (r *repository) ActiveOffers(ctx context.Context, variantID uuid.UUID) ([]models.VariantProvider, error) {
	var offers []models.VariantProvider
	err := r.DB(ctx).
		Where("variant_id = ? AND is_active = ?", variantID, true).
		Order("price ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&offers).Error
	return offers, err
}

func (r *repository) OffersByProvider(ctx context.Context, code enums.ProviderCode) ([]models.VariantProvider, error) {
	var offers []models.VariantProvider
	err := r.DB(ctx).
		Where("provider_code = ?", code).
		Order("created_at ASC").
		Find(&offers).Error
	return offers, err
}

func (r *repository) UpdateOfferQuote(ctx context.Context, offerID uuid.UUID, price int64, active bool, at time.Time) error {
	return r.DB(ctx).
		Model(&models.VariantProvider{}).
		Where("id = ?", offerID).
		Updates(map[string]any{
			"price":        price,
			"is_active":    active,
			"last_updated": at.UTC(),
		}).Error
}

// TouchOffers stamps last_updated on offers a feed confirmed unchanged.
func (r *repository) TouchOffers(ctx context.Context, offerIDs []uuid.UUID, at time.Time) error {
	if len(offerIDs) == 0 {
		return nil
	}
	return r.DB(ctx).
		Model(&models.VariantProvider{}).
		Where("id IN ?", offerIDs).
		Update("last_updated", at.UTC()).Error
}

func (r *repository) UpdateRouting(ctx context.Context, variantID uuid.UUID, routing RoutingUpdate) error {
	return r.DB(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{
			"best_provider":  routing.BestProvider,
			"sku":            routing.SKU,
			"original_price": routing.OriginalPrice,
			"price":          routing.Price,
		}).Error
}
