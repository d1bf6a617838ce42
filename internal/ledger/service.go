package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/db"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
)

const uniqueTypeReference = "ux_wallet_transactions_type_reference"

var typeReferenceColumns = []string{"wallet_transactions.type", "wallet_transactions.reference"}

// Service moves user balances. Every mutation writes exactly one ledger row
// in the caller's transaction.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.WalletTransaction, error)
	Verify(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
}

type service struct {
	repo Repository
}

// CreditInput captures a balance increase and the reference that makes it unique.
type CreditInput struct {
	UserID      uuid.UUID
	Type        enums.WalletTransactionType
	Amount      int64
	Reference   string
	Description string
}

// Reconciliation compares the denormalized balance with the ledger.
type Reconciliation struct {
	UserID     uuid.UUID `json:"user_id"`
	Balance    int64     `json:"balance"`
	LedgerSum  int64     `json:"ledger_sum"`
	Consistent bool      `json:"consistent"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Type.IsValid() || !input.Type.IsCredit() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%q is not a credit type", input.Type))
	}
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	repo := s.repo.WithTx(tx)
	user, err := repo.LockUser(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock user")
	}

	before := user.Balance
	after := before + input.Type.Signed(input.Amount)
	txn := &models.WalletTransaction{
		UserID:        user.ID,
		Type:          input.Type,
		Amount:        input.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     reference,
		Description:   input.Description,
	}
	if err := repo.Create(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, uniqueTypeReference, typeReferenceColumns...) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "wallet transaction already recorded").
				WithDetails(map[string]any{"type": input.Type, "reference": reference})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert wallet transaction")
	}
	if err := repo.UpdateBalance(ctx, user.ID, after); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
	}
	return txn, nil
}

func (s *service) Verify(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	sum, err := s.repo.SignedSum(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger")
	}
	return &Reconciliation{
		UserID:     userID,
		Balance:    user.Balance,
		LedgerSum:  sum,
		Consistent: user.Balance == sum,
	}, nil
}
