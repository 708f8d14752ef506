package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
)

// CartRepository defines the persistence surface required by the cart and
// checkout services.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	Create(ctx context.Context, record *models.Cart) (*models.Cart, error)
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error)
	AddItem(ctx context.Context, item *models.CartItem) (*models.CartItem, error)
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CartStatus, convertedAt *time.Time) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
}
