package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger entry directions
const (
	LedgerDebit  = "debit"
	LedgerCredit = "credit"
)

// Originating document types recorded on ledger entries.
const (
	OriginSale       = "sale"
	OriginReceipt    = "receipt"
	OriginCreditNote = "credit_note"
	OriginAdjustment = "adjustment"
)

// Manual adjustment kinds. ajuste_cargo increases debt, ajuste_descuento
// decreases it without any cash movement.
const (
	AdjustmentCharge   = "ajuste_cargo"
	AdjustmentDiscount = "ajuste_descuento"
)

// LedgerEntry is an append-only row of the per-customer running balance.
// Reversal inserts an offsetting entry; rows are never mutated or deleted
// apart from the voided flag set when a reversal pairs them off.
type LedgerEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`

	OriginType string    `gorm:"type:varchar(20);not null;index:idx_ledger_origin" json:"origin_type"`
	OriginID   uuid.UUID `gorm:"type:uuid;not null;index:idx_ledger_origin" json:"origin_id"`

	Direction string          `gorm:"type:varchar(10);not null" json:"direction"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	// Balance is the materialized running balance snapshot at insertion time.
	Balance decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance"`

	Concept string `gorm:"type:text;not null" json:"concept"`
	Voided  bool   `gorm:"not null;default:false" json:"voided"`

	CreatedAt time.Time `json:"created_at"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// SignedAmount returns the entry amount signed by direction: debits increase
// the customer's debt, credits decrease it.
func (e *LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Direction == LedgerCredit {
		return e.Amount.Neg()
	}
	return e.Amount
}
