package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement kinds
const (
	StockMovementReserve = "RESERVE"
	StockMovementRelease = "RELEASE"
	StockMovementDeduct  = "DEDUCT"
)

// Product represents a catalog item with its current stock level.
type Product struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SKU          string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name         string          `gorm:"type:varchar(255);not null" json:"name"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	CurrentStock int             `gorm:"type:int;not null;default:0" json:"current_stock"`
	Reserved     int             `gorm:"type:int;not null;default:0" json:"reserved"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// StockMovement is an audit row for every reservation change, written in the
// same transaction as the document operation that caused it.
type StockMovement struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	SaleID    uuid.UUID `gorm:"type:uuid;not null;index" json:"sale_id"`
	Kind      string    `gorm:"type:varchar(20);not null" json:"kind"`
	Quantity  int       `gorm:"type:int;not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
