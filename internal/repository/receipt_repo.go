package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptRepository interface {
	Create(ctx context.Context, receipt *model.Receipt) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Receipt, error)
	List(ctx context.Context, customerID *uuid.UUID, page, limit int) ([]model.Receipt, int64, error)
	Update(ctx context.Context, receipt *model.Receipt) error
	CreateAllocations(ctx context.Context, allocations []model.ReceiptAllocation) error
	UpdateAllocation(ctx context.Context, allocation *model.ReceiptAllocation) error
}

type receiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, receipt *model.Receipt) error {
	return GetDB(ctx, r.db).Create(receipt).Error
}

func (r *receiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Receipt, error) {
	var receipt model.Receipt
	err := GetDB(ctx, r.db).
		Preload("Allocations").
		Preload("Payments").
		First(&receipt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *receiptRepository) List(ctx context.Context, customerID *uuid.UUID, page, limit int) ([]model.Receipt, int64, error) {
	var receipts []model.Receipt
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Receipt{})
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Preload("Allocations").Preload("Payments").
		Order("created_at desc").
		Offset(offset).Limit(limit).
		Find(&receipts).Error; err != nil {
		return nil, 0, err
	}
	return receipts, total, nil
}

func (r *receiptRepository) Update(ctx context.Context, receipt *model.Receipt) error {
	return GetDB(ctx, r.db).Save(receipt).Error
}

func (r *receiptRepository) CreateAllocations(ctx context.Context, allocations []model.ReceiptAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&allocations).Error
}

func (r *receiptRepository) UpdateAllocation(ctx context.Context, allocation *model.ReceiptAllocation) error {
	return GetDB(ctx, r.db).Save(allocation).Error
}
