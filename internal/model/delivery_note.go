package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Delivery note statuses
const (
	DeliveryNotePending   = "pending"
	DeliveryNoteInTransit = "in_transit"
	DeliveryNoteDelivered = "delivered"
	DeliveryNoteReturned  = "returned"
	DeliveryNoteCancelled = "cancelled"
)

// deliveryTransitions is the legal status transition table.
var deliveryTransitions = map[string][]string{
	DeliveryNotePending:   {DeliveryNoteInTransit, DeliveryNoteCancelled},
	DeliveryNoteInTransit: {DeliveryNoteDelivered, DeliveryNoteReturned, DeliveryNoteCancelled},
	DeliveryNoteReturned:  {DeliveryNotePending},
}

// CanTransitionDelivery reports whether from -> to is a legal delivery note
// status change.
func CanTransitionDelivery(from, to string) bool {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DeliveryNote tracks physical delivery of a confirmed Sale. A Sale has at
// most one non-cancelled delivery note at a time.
type DeliveryNote struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Number string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`

	SaleID uuid.UUID `gorm:"type:uuid;not null;index" json:"sale_id"`
	Sale   *Sale     `gorm:"foreignKey:SaleID" json:"sale,omitempty"`

	Status          string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	DeliveryAddress string `gorm:"type:text;not null" json:"delivery_address"`
	Courier         string `gorm:"type:varchar(255)" json:"courier"`

	// Captured only on the respective terminal transitions
	ReceiverName       string     `gorm:"type:varchar(255)" json:"receiver_name"`
	DeliveredAt        *time.Time `json:"delivered_at"`
	CancellationReason string     `gorm:"type:text" json:"cancellation_reason"`

	Items []DeliveryNoteItem `gorm:"foreignKey:DeliveryNoteID;constraint:OnDelete:CASCADE" json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *DeliveryNote) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DeliveryNoteItem carries requested vs delivered quantity per sale line.
type DeliveryNoteItem struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DeliveryNoteID    uuid.UUID `gorm:"type:uuid;not null;index" json:"delivery_note_id"`
	ProductID         uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	Description       string    `gorm:"type:varchar(255)" json:"description"`
	QuantityRequested int       `gorm:"type:int;not null" json:"quantity_requested"`
	QuantityDelivered int       `gorm:"type:int;not null;default:0" json:"quantity_delivered"`
}

func (i *DeliveryNoteItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
