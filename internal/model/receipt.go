package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Receipt statuses
const (
	ReceiptActive = "active"
	ReceiptVoided = "voided"
)

// Payment methods
const (
	PaymentMethodCash     = "cash"
	PaymentMethodCheck    = "check"
	PaymentMethodTransfer = "transfer"
	PaymentMethodCard     = "card"
)

// Receipt records an actual payment event against one or more Sales, split
// across payment instruments.
type Receipt struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Number string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`

	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer   *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`

	Status           string  `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	VoidReason       *string `gorm:"type:text" json:"void_reason"`
	CorrectionReason *string `gorm:"type:text" json:"correction_reason"`

	Allocations []ReceiptAllocation `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"allocations"`
	Payments    []ReceiptPayment    `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"payments"`

	// AmountDue is the outstanding total across referenced sales when the
	// receipt was taken; AmountPaid the instrument total; AmountApplied what
	// actually reduced sale balances; Change what is owed back in cash;
	// Shortfall the debt left on the referenced sales.
	AmountDue     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_due"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_paid"`
	AmountApplied decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_applied"`
	Change        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"change"`
	Shortfall     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"shortfall"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Receipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReceiptAllocation links a receipt to a sale with the pre-receipt balance
// and the amount applied against it.
type ReceiptAllocation struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"receipt_id"`
	SaleID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"sale_id"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance_before"`
	AmountApplied decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_applied"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (a *ReceiptAllocation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ReceiptPayment is one payment-instrument entry. Instrument-specific fields
// are required per method and validated at creation.
type ReceiptPayment struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID uuid.UUID       `gorm:"type:uuid;not null;index" json:"receipt_id"`
	Method    string          `gorm:"type:varchar(20);not null" json:"method"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`

	// check
	CheckNumber string     `gorm:"type:varchar(50)" json:"check_number,omitempty"`
	BankName    string     `gorm:"type:varchar(255)" json:"bank_name,omitempty"`
	HolderName  string     `gorm:"type:varchar(255)" json:"holder_name,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	// transfer
	Reference string `gorm:"type:varchar(100)" json:"reference,omitempty"`
	// card
	CardLast4         string `gorm:"type:varchar(4)" json:"card_last4,omitempty"`
	CardAuthorization string `gorm:"type:varchar(50)" json:"card_authorization,omitempty"`
}

func (p *ReceiptPayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
