package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LedgerRepository interface {
	// Append inserts an entry. Entries are never updated or deleted apart
	// from MarkVoided.
	Append(ctx context.Context, entry *model.LedgerEntry) error
	MarkVoided(ctx context.Context, ids []uuid.UUID) error
	FindActiveByOrigin(ctx context.Context, originType string, originID uuid.UUID) ([]model.LedgerEntry, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, page, limit int) ([]model.LedgerEntry, int64, error)
	// SumActiveByCustomer returns the signed sum of non-voided entries,
	// the audit-trail definition of the customer balance.
	SumActiveByCustomer(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Append(ctx context.Context, entry *model.LedgerEntry) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *ledgerRepository) MarkVoided(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.LedgerEntry{}).
		Where("id IN ?", ids).
		Update("voided", true).Error
}

func (r *ledgerRepository) FindActiveByOrigin(ctx context.Context, originType string, originID uuid.UUID) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := GetDB(ctx, r.db).
		Where("origin_type = ? AND origin_id = ? AND voided = ?", originType, originID, false).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, page, limit int) ([]model.LedgerEntry, int64, error) {
	var entries []model.LedgerEntry
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.LedgerEntry{}).Where("customer_id = ?", customerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *ledgerRepository) SumActiveByCustomer(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	var entries []model.LedgerEntry
	err := GetDB(ctx, r.db).
		Where("customer_id = ? AND voided = ?", customerID, false).
		Find(&entries).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.SignedAmount())
	}
	return sum, nil
}
