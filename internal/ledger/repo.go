package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/internal/repo"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
)

// Repository manages persistence for wallet balances and their ledger rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateBalance(ctx context.Context, userID uuid.UUID, balance int64) error
	Create(ctx context.Context, txn *models.WalletTransaction) error
	FindByReference(ctx context.Context, txnType enums.WalletTransactionType, reference string) (*models.WalletTransaction, error)
	SignedSum(ctx context.Context, userID uuid.UUID) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.ForUpdate(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdateBalance(ctx context.Context, userID uuid.UUID, balance int64) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", balance).Error
}

func (r *repository) Create(ctx context.Context, txn *models.WalletTransaction) error {
	return r.DB(ctx).Create(txn).Error
}

func (r *repository) FindByReference(ctx context.Context, txnType enums.WalletTransactionType, reference string) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.DB(ctx).
		Where("type = ? AND reference = ?", txnType, reference).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) SignedSum(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	err := r.DB(ctx).
		Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN -amount ELSE amount END), 0)", enums.WalletPurchase).
		Where("user_id = ?", userID).
		Scan(&sum).Error
	return sum, err
}
