package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Confirmation axis
const (
	SaleDraft     = "draft"
	SaleConfirmed = "confirmed"
	SaleCancelled = "cancelled"
)

// Collection axis. Always derived from OutstandingBalance, never set directly.
const (
	CollectionNone    = "uncollected"
	CollectionPartial = "partially_collected"
	CollectionFull    = "collected"
)

// Delivery axis. Only delivery-note state changes move it.
const (
	DeliveryNone   = "no_delivery_note"
	DeliveryIssued = "delivery_note_issued"
	DeliveryDone   = "delivered"
)

// Collection timing policy: whether payment must precede, accompany, or may
// follow confirmation.
const (
	TimingAdvance    = "advance"
	TimingOnDelivery = "on_delivery"
	TimingDeferred   = "deferred"
)

// Sale is the originating commercial document. The three status axes are
// orthogonal; there is exactly one authoritative representation per axis.
type Sale struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Number   string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	SaleDate time.Time `gorm:"not null;index" json:"sale_date"`

	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer   *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`

	// No column default: gorm would skip a false value on insert and the
	// database default would win. The service sets the field explicitly.
	ApplyTax         bool   `gorm:"not null" json:"apply_tax"`
	CollectionTiming string `gorm:"type:varchar(20);not null;default:'deferred'" json:"collection_timing"`

	ConfirmationState string `gorm:"type:varchar(20);not null;default:'draft';index" json:"confirmation_state"`
	CollectionState   string `gorm:"type:varchar(30);not null;default:'uncollected';index" json:"collection_state"`
	DeliveryState     string `gorm:"type:varchar(30);not null;default:'no_delivery_note'" json:"delivery_state"`

	Items []SaleItem `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"items"`

	Total              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total"`
	AmountCollected    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_collected"`
	OutstandingBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"outstanding_balance"`

	Invoiced       bool       `gorm:"default:false" json:"invoiced"`
	DeliveryNoteID *uuid.UUID `gorm:"type:uuid" json:"delivery_note_id"`
	DeliveredAt    *time.Time `json:"delivered_at"`

	Note      string    `gorm:"type:text" json:"note"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SaleItem is a line item with its computed subtotal.
type SaleItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SaleID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"sale_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Product     *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Description string          `gorm:"type:varchar(255)" json:"description"`
	Quantity    int             `gorm:"type:int;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	DiscountPct decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount_pct"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
}

func (i *SaleItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ComputeSubtotal prices the line: qty * unit * (1 - discount%), rounded to 2.
func (i *SaleItem) ComputeSubtotal() decimal.Decimal {
	gross := i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	if i.DiscountPct.IsZero() {
		return gross.Round(2)
	}
	factor := decimal.NewFromInt(1).Sub(i.DiscountPct.Div(decimal.NewFromInt(100)))
	return gross.Mul(factor).Round(2)
}

// RecalculateCollection applies a collection delta and re-derives
// AmountCollected, OutstandingBalance and the collection axis. This is the
// only place the collection axis is written.
func (s *Sale) RecalculateCollection(appliedDelta decimal.Decimal) {
	s.AmountCollected = s.AmountCollected.Add(appliedDelta)
	s.OutstandingBalance = s.Total.Sub(s.AmountCollected)
	switch {
	case s.OutstandingBalance.LessThanOrEqual(decimal.Zero):
		s.CollectionState = CollectionFull
	case s.AmountCollected.GreaterThan(decimal.Zero):
		s.CollectionState = CollectionPartial
	default:
		s.CollectionState = CollectionNone
	}
}
