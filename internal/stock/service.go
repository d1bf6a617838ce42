package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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

// Pool hands out pre-provisioned credentials. Claims never overlap: rows are
// locked, flipped with a status guard and the whole claim commits or not at all.
type Pool interface {
	Claim(ctx context.Context, tx *gorm.DB, input ClaimInput) (*ClaimResult, error)
	AddStock(ctx context.Context, input AddStockInput) (int, error)
	Available(ctx context.Context, variantID uuid.UUID) (int64, error)
}

// ClaimInput identifies the order item the claimed rows are delivered to.
type ClaimInput struct {
	VariantID   uuid.UUID
	OrderItemID uuid.UUID
	Quantity    int
}

// ClaimResult carries the delivered payload, rows joined by the boundary.
type ClaimResult struct {
	StockIDs  []uuid.UUID
	Payload   string
	Remaining int64
}

// AddStockInput is an operator restock; blank contents are skipped.
type AddStockInput struct {
	VariantID uuid.UUID
	Contents  []string
	ExpiresAt *time.Time
}

// ServiceParams groups the pool dependencies.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Boundary string
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
	boundary string
	now      func() time.Time
}

// NewService builds the stock pool.
func NewService(params ServiceParams) (Pool, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Boundary == "" {
		return nil, fmt.Errorf("stock boundary required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
		boundary: params.Boundary,
		now:      now,
	}, nil
}

// Claim must run inside the caller's transaction so the item outcome commits
// together with the stock flip.
func (s *service) Claim(ctx context.Context, tx *gorm.DB, input ClaimInput) (*ClaimResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.VariantID == uuid.Nil || input.OrderItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id and order item id are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	repo := s.repo.WithTx(tx)
	now := s.now()
	rows, err := repo.LockAvailable(ctx, input.VariantID, now, input.Quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock")
	}
	if len(rows) < input.Quantity {
		return nil, insufficient(input, len(rows))
	}

	ids := make([]uuid.UUID, 0, len(rows))
	contents := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		contents = append(contents, row.Content)
	}
	flipped, err := repo.MarkUsed(ctx, ids, input.OrderItemID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark stock used")
	}
	if flipped != int64(len(ids)) {
		return nil, insufficient(input, int(flipped))
	}
	if err := repo.AdjustCounter(ctx, input.VariantID, -input.Quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock counter")
	}

	remaining, err := repo.CountAvailable(ctx, input.VariantID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count stock")
	}
	if remaining == 0 {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockDepleted,
			AggregateType: enums.AggregateVariant,
			AggregateID:   input.VariantID,
			Data:          payloads.StockDepletedEvent{VariantID: input.VariantID},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit stock depleted")
		}
	}

	return &ClaimResult{
		StockIDs:  ids,
		Payload:   strings.Join(contents, s.boundary),
		Remaining: remaining,
	}, nil
}

func insufficient(input ClaimInput, found int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient stock").
		WithDetails(map[string]any{
			"variant_id": input.VariantID,
			"requested":  input.Quantity,
			"available":  found,
		})
}

func (s *service) AddStock(ctx context.Context, input AddStockInput) (int, error) {
	if input.VariantID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future")
	}

	// rows of one batch are spaced a microsecond apart so FIFO claims follow
	// input order
	base := s.now().UTC()
	rows := make([]models.DigitalStock, 0, len(input.Contents))
	for _, content := range input.Contents {
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		row := models.DigitalStock{
			VariantID: input.VariantID,
			Content:   content,
			Status:    enums.StockAvailable,
			CreatedAt: base.Add(time.Duration(len(rows)) * time.Microsecond),
		}
		if input.ExpiresAt != nil {
			expires := input.ExpiresAt.UTC()
			row.ExpiresAt = &expires
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "no stock contents provided")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		exists, err := repo.VariantExists(ctx, input.VariantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		if err := repo.Insert(ctx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert stock")
		}
		if err := repo.AdjustCounter(ctx, input.VariantID, len(rows)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock counter")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"variant_id": input.VariantID.String(),
			"added":      len(rows),
		})
		s.logg.Info(logCtx, "digital stock added")
	}
	return len(rows), nil
}

func (s *service) Available(ctx context.Context, variantID uuid.UUID) (int64, error) {
	count, err := s.repo.CountAvailable(ctx, variantID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count stock")
	}
	return count, nil
}
