package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
)

// Fixtures inserts rows with strictly increasing created_at values so
// insertion order is also query order.
type Fixtures struct {
	t     testing.TB
	db    *gorm.DB
	clock time.Time
}

// ItemSpec describes one order line for Fixtures.Order.
type ItemSpec struct {
	VariantID uuid.UUID
	Quantity  int
	UnitPrice int64
	Target    *string
}

// Seed returns a fixture builder over db.
func Seed(t testing.TB, db *gorm.DB) *Fixtures {
	return &Fixtures{
		t:     t,
		db:    db,
		clock: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}
}

func (f *Fixtures) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *Fixtures) create(value any) {
	f.t.Helper()
	if err := f.db.Create(value).Error; err != nil {
		f.t.Fatalf("seed %T: %v", value, err)
	}
}

// User creates a customer. A positive opening balance is backed by a TOPUP
// ledger row so the wallet stays reconciled.
func (f *Fixtures) User(balance int64) models.User {
	f.t.Helper()
	user := models.User{
		Email:     uuid.NewString() + "@example.com",
		Name:      "Customer",
		Balance:   balance,
		CreatedAt: f.tick(),
	}
	f.create(&user)
	if balance > 0 {
		f.create(&models.WalletTransaction{
			UserID:        user.ID,
			Type:          enums.WalletTopUp,
			Amount:        balance,
			BalanceBefore: 0,
			BalanceAfter:  balance,
			Reference:     "SEED-" + user.ID.String(),
			Description:   "opening balance",
			CreatedAt:     f.tick(),
		})
	}
	return user
}

func (f *Fixtures) Product(category enums.CategoryType) models.Product {
	f.t.Helper()
	id := uuid.New()
	product := models.Product{
		ID:           id,
		Name:         fmt.Sprintf("%s product", category),
		Slug:         "p-" + id.String(),
		CategoryType: category,
		IsActive:     true,
		CreatedAt:    f.tick(),
	}
	f.create(&product)
	return product
}

// Variant creates a variant; best may be nil.
func (f *Fixtures) Variant(productID uuid.UUID, best *enums.ProviderCode, delivery enums.DeliveryType) models.ProductVariant {
	f.t.Helper()
	variant := models.ProductVariant{
		ProductID:    productID,
		Name:         "Variant",
		Price:        10000,
		BestProvider: best,
		DeliveryType: delivery,
		CreatedAt:    f.tick(),
	}
	f.create(&variant)
	return variant
}

func (f *Fixtures) Offer(variantID uuid.UUID, code enums.ProviderCode, sku string, price int64, active bool) models.VariantProvider {
	f.t.Helper()
	now := f.tick()
	offer := models.VariantProvider{
		VariantID:    variantID,
		ProviderCode: code,
		ProviderSKU:  sku,
		Price:        price,
		IsActive:     active,
		LastUpdated:  now,
		CreatedAt:    now,
	}
	f.create(&offer)
	return offer
}

// Stock inserts AVAILABLE rows and bumps the variant's cached counter.
func (f *Fixtures) Stock(variantID uuid.UUID, contents ...string) []models.DigitalStock {
	f.t.Helper()
	rows := make([]models.DigitalStock, 0, len(contents))
	for _, content := range contents {
		row := models.DigitalStock{
			VariantID: variantID,
			Content:   content,
			Status:    enums.StockAvailable,
			CreatedAt: f.tick(),
		}
		f.create(&row)
		rows = append(rows, row)
	}
	if err := f.db.Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Update("stock", gorm.Expr("stock + ?", len(contents))).Error; err != nil {
		f.t.Fatalf("bump stock counter: %v", err)
	}
	return rows
}

// Order creates an order and its items; the total is the sum of subtotals.
func (f *Fixtures) Order(userID uuid.UUID, status enums.OrderStatus, items ...ItemSpec) models.Order {
	f.t.Helper()
	order := models.Order{
		InvoiceCode: "INV-" + uuid.NewString()[:8],
		UserID:      userID,
		Status:      status,
		CreatedAt:   f.tick(),
	}
	if status != enums.OrderStatusPending {
		paidAt := order.CreatedAt
		order.PaidAt = &paidAt
	}
	for _, spec := range items {
		qty := spec.Quantity
		if qty == 0 {
			qty = 1
		}
		order.TotalAmount += spec.UnitPrice * int64(qty)
	}
	f.create(&order)

	for _, spec := range items {
		qty := spec.Quantity
		if qty == 0 {
			qty = 1
		}
		item := models.OrderItem{
			OrderID:   order.ID,
			VariantID: spec.VariantID,
			Quantity:  qty,
			UnitPrice: spec.UnitPrice,
			Subtotal:  spec.UnitPrice * int64(qty),
			Target:    spec.Target,
			CreatedAt: f.tick(),
		}
		f.create(&item)
		order.Items = append(order.Items, item)
	}
	return order
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
