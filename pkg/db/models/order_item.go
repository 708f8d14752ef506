package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is one purchased line. Name, SKU, price, thumbnail and the
// selected variant title are snapshotted at order creation; later catalog
// edits never reach back into a placed order.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Name           string     `gorm:"column:name;not null"`
	SKU            string     `gorm:"column:sku;not null"`
	VariantTitle   *string    `gorm:"column:variant_title"`
	Thumbnail      *string    `gorm:"column:thumbnail"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	Quantity       int        `gorm:"column:quantity;not null"`
	SubtotalCents  int        `gorm:"column:subtotal_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
