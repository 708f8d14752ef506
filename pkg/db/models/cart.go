package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
)

// Cart is a user's in-progress selection. A user has at most one active cart,
// enforced by a partial unique index on (user_id) WHERE status = 'active'.
type Cart struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID        `gorm:"column:user_id;type:uuid;not null"`
	Status      enums.CartStatus `gorm:"column:status;not null;default:'active'"`
	ConvertedAt *time.Time       `gorm:"column:converted_at"`
	Items       []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
