package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
)

// Notification records a dispatched order notification. Delivery itself is
// best effort; the row is the audit trail and the user-facing inbox entry.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID   *uuid.UUID             `gorm:"column:order_id;type:uuid"`
	Kind      enums.NotificationKind `gorm:"column:kind;not null"`
	Subject   string                 `gorm:"column:subject;not null"`
	Payload   map[string]any         `gorm:"column:payload;type:jsonb;serializer:json"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
