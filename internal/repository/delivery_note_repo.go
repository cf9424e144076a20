package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeliveryNoteRepository interface {
	Create(ctx context.Context, note *model.DeliveryNote) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.DeliveryNote, error)
	List(ctx context.Context, status string, page, limit int) ([]model.DeliveryNote, int64, error)
	Update(ctx context.Context, note *model.DeliveryNote) error
	UpdateItems(ctx context.Context, items []model.DeliveryNoteItem) error
	// CountActiveBySale counts non-cancelled delivery notes for the sale.
	CountActiveBySale(ctx context.Context, saleID uuid.UUID) (int64, error)
}

type deliveryNoteRepository struct {
	db *gorm.DB
}

func NewDeliveryNoteRepository(db *gorm.DB) DeliveryNoteRepository {
	return &deliveryNoteRepository{db: db}
}

func (r *deliveryNoteRepository) Create(ctx context.Context, note *model.DeliveryNote) error {
	return GetDB(ctx, r.db).Create(note).Error
}

func (r *deliveryNoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.DeliveryNote, error) {
	var note model.DeliveryNote
	if err := GetDB(ctx, r.db).Preload("Items").First(&note, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *deliveryNoteRepository) List(ctx context.Context, status string, page, limit int) ([]model.DeliveryNote, int64, error) {
	var notes []model.DeliveryNote
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.DeliveryNote{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Preload("Items").
		Order("created_at desc").
		Offset(offset).Limit(limit).
		Find(&notes).Error; err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

func (r *deliveryNoteRepository) Update(ctx context.Context, note *model.DeliveryNote) error {
	return GetDB(ctx, r.db).Save(note).Error
}

func (r *deliveryNoteRepository) UpdateItems(ctx context.Context, items []model.DeliveryNoteItem) error {
	db := GetDB(ctx, r.db)
	for i := range items {
		if err := db.Save(&items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *deliveryNoteRepository) CountActiveBySale(ctx context.Context, saleID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.DeliveryNote{}).
		Where("sale_id = ? AND status <> ?", saleID, model.DeliveryNoteCancelled).
		Count(&count).Error
	return count, err
}
