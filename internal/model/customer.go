package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TaxCondition enum constants. The comprobante letter an invoice gets is
// derived from the customer's condition, never chosen by the caller.
const (
	TaxConditionRegistered = "responsable_inscripto"
	TaxConditionMonotax    = "monotributo"
	TaxConditionFinal      = "consumidor_final"
	TaxConditionExempt     = "exento"
)

// Customer represents a buyer. CurrentBalance is the materialized ledger
// balance; no code path outside ledger posting may write it.
type Customer struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	TaxID        string    `gorm:"type:varchar(20)" json:"tax_id"`
	TaxCondition string    `gorm:"type:varchar(30);not null;default:'consumidor_final'" json:"tax_condition"`
	Email        string    `gorm:"type:varchar(255)" json:"email"`
	Phone        string    `gorm:"type:varchar(50)" json:"phone"`
	Address      string    `gorm:"type:text" json:"address"`

	CreditLimit    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"credit_limit"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"current_balance"`

	// Accepted payment instrument flags
	AcceptsCash     bool `gorm:"default:true" json:"accepts_cash"`
	AcceptsCheck    bool `gorm:"default:true" json:"accepts_check"`
	AcceptsTransfer bool `gorm:"default:true" json:"accepts_transfer"`
	AcceptsCard     bool `gorm:"default:true" json:"accepts_card"`

	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// AcceptsInstrument reports whether the customer may pay with the given
// payment method.
func (c *Customer) AcceptsInstrument(method string) bool {
	switch method {
	case PaymentMethodCash:
		return c.AcceptsCash
	case PaymentMethodCheck:
		return c.AcceptsCheck
	case PaymentMethodTransfer:
		return c.AcceptsTransfer
	case PaymentMethodCard:
		return c.AcceptsCard
	default:
		return false
	}
}
