package database

import (
	"log"

	"backend/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM.
// TranslateError is on so unique-index violations surface as
// gorm.ErrDuplicatedKey, which the number allocator retry depends on.
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		log.Println("WARNING: Failed to auto-migrate models:", err)
	}

	return db, nil
}

// Migrate creates or updates the schema for all document models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Customer{},
		&model.Product{},
		&model.StockMovement{},
		&model.Sale{},
		&model.SaleItem{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.CreditNote{},
		&model.DeliveryNote{},
		&model.DeliveryNoteItem{},
		&model.Receipt{},
		&model.ReceiptAllocation{},
		&model.ReceiptPayment{},
		&model.LedgerEntry{},
	)
}
