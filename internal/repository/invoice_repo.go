package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceListFilter narrows invoice listings.
type InvoiceListFilter struct {
	CustomerID         *uuid.UUID
	AuthorizationState string
	Number             string
	Page               int
	Limit              int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
	Update(ctx context.Context, invoice *model.Invoice) error
	// UpdateAuthorization writes only the authorization columns; monetary
	// fields stay untouched so an authorized invoice cannot drift.
	UpdateAuthorization(ctx context.Context, invoice *model.Invoice) error
	// CountActiveBySale counts non-voided invoices linked to the sale.
	CountActiveBySale(ctx context.Context, saleID uuid.UUID) (int64, error)
	CreateCreditNote(ctx context.Context, note *model.CreditNote) error
	UpdateCreditNote(ctx context.Context, note *model.CreditNote) error
	FindCreditNoteByID(ctx context.Context, id uuid.UUID) (*model.CreditNote, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Sales").
		Preload("CreditNotes").
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Invoice{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.AuthorizationState != "" {
		query = query.Where("authorization_state = ?", filter.AuthorizationState)
	}
	if filter.Number != "" {
		query = query.Where("number LIKE ?", "%"+filter.Number+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Items").Preload("CreditNotes").
		Order("created_at desc").
		Offset(offset).Limit(filter.Limit).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *invoiceRepository) Update(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Save(invoice).Error
}

func (r *invoiceRepository) UpdateAuthorization(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]interface{}{
			"authorization_state":  invoice.AuthorizationState,
			"authorization_code":   invoice.AuthorizationCode,
			"authorization_expiry": invoice.AuthorizationExpiry,
			"rejection_reason":     invoice.RejectionReason,
			"last_error":           invoice.LastError,
		}).Error
}

func (r *invoiceRepository) CountActiveBySale(ctx context.Context, saleID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Joins("JOIN invoice_sales ON invoice_sales.invoice_id = invoices.id").
		Where("invoice_sales.sale_id = ? AND invoices.authorization_state <> ?",
			saleID, model.AuthorizationVoided).
		Count(&count).Error
	return count, err
}

func (r *invoiceRepository) CreateCreditNote(ctx context.Context, note *model.CreditNote) error {
	return GetDB(ctx, r.db).Create(note).Error
}

func (r *invoiceRepository) UpdateCreditNote(ctx context.Context, note *model.CreditNote) error {
	return GetDB(ctx, r.db).Save(note).Error
}

func (r *invoiceRepository) FindCreditNoteByID(ctx context.Context, id uuid.UUID) (*model.CreditNote, error) {
	var note model.CreditNote
	if err := GetDB(ctx, r.db).First(&note, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &note, nil
}
