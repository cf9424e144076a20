package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SaleListFilter narrows sale listings.
type SaleListFilter struct {
	CustomerID        *uuid.UUID
	ConfirmationState string
	CollectionState   string
	Page              int
	Limit             int
}

type SaleRepository interface {
	Create(ctx context.Context, sale *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Sale, error)
	List(ctx context.Context, filter SaleListFilter) ([]model.Sale, int64, error)
	// OutstandingByCustomer returns confirmed sales with a positive balance,
	// oldest sale-date first.
	OutstandingByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Sale, error)
	Update(ctx context.Context, sale *model.Sale) error
	ReplaceItems(ctx context.Context, sale *model.Sale, items []model.SaleItem) error
}

type saleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) Create(ctx context.Context, sale *model.Sale) error {
	return GetDB(ctx, r.db).Create(sale).Error
}

func (r *saleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var sale model.Sale
	if err := GetDB(ctx, r.db).Preload("Items").Preload("Customer").First(&sale, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *saleRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Sale, error) {
	var sales []model.Sale
	if err := GetDB(ctx, r.db).Preload("Items").Where("id IN ?", ids).Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *saleRepository) List(ctx context.Context, filter SaleListFilter) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Sale{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ConfirmationState != "" {
		query = query.Where("confirmation_state = ?", filter.ConfirmationState)
	}
	if filter.CollectionState != "" {
		query = query.Where("collection_state = ?", filter.CollectionState)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Items").Preload("Customer").
		Order("sale_date desc, number desc").
		Offset(offset).Limit(filter.Limit).
		Find(&sales).Error; err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (r *saleRepository) OutstandingByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Sale, error) {
	var sales []model.Sale
	err := GetDB(ctx, r.db).
		Where("customer_id = ? AND confirmation_state = ? AND outstanding_balance > 0",
			customerID, model.SaleConfirmed).
		Order("sale_date asc, number asc").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *saleRepository) Update(ctx context.Context, sale *model.Sale) error {
	return GetDB(ctx, r.db).Save(sale).Error
}

func (r *saleRepository) ReplaceItems(ctx context.Context, sale *model.Sale, items []model.SaleItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("sale_id = ?", sale.ID).Delete(&model.SaleItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].SaleID = sale.ID
	}
	if len(items) > 0 {
		if err := db.Create(&items).Error; err != nil {
			return err
		}
	}
	sale.Items = items
	return nil
}
