package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/types"
)

// Order is the durable record of a completed checkout. Rows are created once
// and never deleted; only status, payment_status and the timestamps that
// accompany those transitions change afterwards.
//
// Invariant: TotalCents = SubtotalCents + TaxCents + ShippingCents - DiscountCents.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	PaymentRef      *string             `gorm:"column:payment_ref"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null"`
	TaxCents        int                 `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents   int                 `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int                 `gorm:"column:total_cents;not null"`
	ShippingAddress *types.Address      `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress  *types.Address      `gorm:"column:billing_address;type:jsonb;serializer:json"`
	Notes           *string             `gorm:"column:notes"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
