package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product is the catalog listing. This service only reads price, availability
// and stock, and writes stock; every other field is owned by the catalog
// subsystem.
type Product struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU        string           `gorm:"column:sku;not null;uniqueIndex"`
	Title      string           `gorm:"column:title;not null"`
	PriceCents int              `gorm:"column:price_cents;not null"`
	Stock      int              `gorm:"column:stock;not null;default:0"`
	IsActive   bool             `gorm:"column:is_active;not null;default:true"`
	Thumbnail  *string          `gorm:"column:thumbnail"`
	Images     pq.StringArray   `gorm:"column:images;type:text[]"`
	Variants   []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
