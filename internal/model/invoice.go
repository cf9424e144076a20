package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Comprobante letters, derived from the customer's tax condition.
const (
	InvoiceTypeA = "A"
	InvoiceTypeB = "B"
	InvoiceTypeC = "C"
)

// Authorization states. "error" means the authority call never completed,
// distinct from an explicit rejection.
const (
	AuthorizationDraft      = "draft"
	AuthorizationAuthorized = "authorized"
	AuthorizationRejected   = "rejected"
	AuthorizationVoided     = "voided"
	AuthorizationError      = "error"
)

// VAT rates per line, percent.
var (
	TaxRateStandard = decimal.NewFromFloat(21)
	TaxRateReduced  = decimal.NewFromFloat(10.5)
)

// InvoiceTypeFor derives the comprobante letter from a tax condition.
func InvoiceTypeFor(taxCondition string) string {
	switch taxCondition {
	case TaxConditionRegistered:
		return InvoiceTypeA
	case TaxConditionMonotax:
		return InvoiceTypeC
	default:
		return InvoiceTypeB
	}
}

// Invoice is the tax-authority-facing document. The customer tax identity is
// snapshotted at creation and the monetary fields become immutable once the
// invoice is authorized.
type Invoice struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Number string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	Type   string    `gorm:"type:varchar(5);not null" json:"type"`

	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	// Snapshot of the customer's tax identity at issuance time
	CustomerName         string `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerTaxID        string `gorm:"type:varchar(20)" json:"customer_tax_id"`
	CustomerTaxCondition string `gorm:"type:varchar(30);not null" json:"customer_tax_condition"`

	Sales []Sale        `gorm:"many2many:invoice_sales" json:"sales,omitempty"`
	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`

	NetAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"net_amount"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_amount"`

	AuthorizationState  string     `gorm:"type:varchar(20);not null;default:'draft';index" json:"authorization_state"`
	AuthorizationCode   *string    `gorm:"type:varchar(30)" json:"authorization_code"`
	AuthorizationExpiry *time.Time `json:"authorization_expiry"`
	RejectionReason     *string    `gorm:"type:text" json:"rejection_reason"`
	LastError           *string    `gorm:"type:text" json:"last_error"`

	CreditNotes []CreditNote `gorm:"foreignKey:InvoiceID" json:"credit_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// CreditedAmount sums the authorized credit notes against this invoice.
func (i *Invoice) CreditedAmount() decimal.Decimal {
	credited := decimal.Zero
	for _, cn := range i.CreditNotes {
		if cn.AuthorizationState == AuthorizationAuthorized {
			credited = credited.Add(cn.TotalAmount)
		}
	}
	return credited
}

// TaxBucket is one line of the tax breakdown grouped by rate.
type TaxBucket struct {
	Rate decimal.Decimal `json:"rate"`
	Base decimal.Decimal `json:"base"`
	Tax  decimal.Decimal `json:"tax"`
}

// TaxBreakdown groups item tax by rate bucket, in first-seen order.
func (i *Invoice) TaxBreakdown() []TaxBucket {
	byRate := map[string]*TaxBucket{}
	order := []string{}
	for _, item := range i.Items {
		key := item.TaxRate.String()
		bucket, ok := byRate[key]
		if !ok {
			bucket = &TaxBucket{Rate: item.TaxRate, Base: decimal.Zero, Tax: decimal.Zero}
			byRate[key] = bucket
			order = append(order, key)
		}
		bucket.Base = bucket.Base.Add(item.LineTotal)
		bucket.Tax = bucket.Tax.Add(item.TaxAmount())
	}
	out := make([]TaxBucket, 0, len(order))
	for _, key := range order {
		out = append(out, *byRate[key])
	}
	return out
}

// InvoiceItem may be re-priced or re-described relative to the Sale lines.
type InvoiceItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ProductID   *uuid.UUID      `gorm:"type:uuid" json:"product_id"`
	Description string          `gorm:"type:varchar(255);not null" json:"description"`
	Quantity    int             `gorm:"type:int;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(5,2);not null;default:21" json:"tax_rate"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
}

func (i *InvoiceItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TaxAmount computes the VAT for the line from its rate.
func (i *InvoiceItem) TaxAmount() decimal.Decimal {
	return i.LineTotal.Mul(i.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
}

// CreditNote reverses an authorized invoice, fully or partially. It goes
// through the same external authorization step as the invoice itself.
type CreditNote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Number    string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	Type      string    `gorm:"type:varchar(5);not null" json:"type"`
	InvoiceID uuid.UUID `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Reason    string    `gorm:"type:text;not null" json:"reason"`

	NetAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"net_amount"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`

	AuthorizationState  string     `gorm:"type:varchar(20);not null;default:'draft'" json:"authorization_state"`
	AuthorizationCode   *string    `gorm:"type:varchar(30)" json:"authorization_code"`
	AuthorizationExpiry *time.Time `json:"authorization_expiry"`
	RejectionReason     *string    `gorm:"type:text" json:"rejection_reason"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *CreditNote) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
