package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pagination"
)

// Repository persists credit balances and the audit trail of their mutations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Decrement(ctx context.Context, userID uuid.UUID, amountCents int64) (bool, error)
	Increment(ctx context.Context, userID uuid.UUID, amountCents int64) error
	InsertTransaction(ctx context.Context, entry *models.CreditTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.CreditTransaction, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var row struct {
		CreditBalanceCents int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("credit_balance_cents").
		Where("id = ?", userID).
		Take(&row).Error; err != nil {
		return 0, err
	}
	return row.CreditBalanceCents, nil
}

// Decrement subtracts amountCents only when the balance covers it. The guard lives
// in the WHERE clause so concurrent debits can never drive the balance negative.
func (r *repository) Decrement(ctx context.Context, userID uuid.UUID, amountCents int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND credit_balance_cents >= ?", userID, amountCents).
		Updates(map[string]any{
			"credit_balance_cents": gorm.Expr("credit_balance_cents - ?", amountCents),
			"updated_at":           time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) Increment(ctx context.Context, userID uuid.UUID, amountCents int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"credit_balance_cents": gorm.Expr("credit_balance_cents + ?", amountCents),
			"updated_at":           time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) InsertTransaction(ctx context.Context, entry *models.CreditTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.CreditTransaction, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.CreditTransaction{}).Where("user_id = ?", userID)

	var rows []models.CreditTransaction
	if err := pagination.Apply(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, limit, func(row models.CreditTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}
