package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
)

func seedOrderForUser(t *testing.T, db *gorm.DB, userID uuid.UUID, number string, createdAt time.Time) *models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:   number,
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		SubtotalCents: 1000,
		TotalCents:    1000,
		Items: []models.OrderItem{
			{
				ProductID:      uuid.New(),
				Name:           "Widget",
				SKU:            "SKU-WIDGET",
				UnitPriceCents: 1000,
				Quantity:       1,
				SubtotalCents:  1000,
			},
		},
	}
	order.ID = uuid.New()
	order.CreatedAt = createdAt
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func TestRepositoryFindByIDLoadsItems(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := seedOrderForUser(t, db, uuid.New(), "ORD-2601-10001", time.Now())

	found, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.OrderNumber, found.OrderNumber)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "SKU-WIDGET", found.Items[0].SKU)
}

func TestRepositoryFindByIDForUserScopesOwnership(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	owner := uuid.New()
	seeded := seedOrderForUser(t, db, owner, "ORD-2601-10002", time.Now())

	found, err := repo.FindByIDForUser(ctx, seeded.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)

	_, err = repo.FindByIDForUser(ctx, seeded.ID, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryFindByNumberForUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := seedOrderForUser(t, db, uuid.New(), "ORD-2601-10003", time.Now())

	found, err := repo.FindByNumberForUpdate(ctx, seeded.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)
	require.Len(t, found.Items, 1)

	_, err = repo.FindByNumberForUpdate(ctx, "ORD-2601-99999")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListByUserOrdersNewestFirst(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	base := time.Now().Add(-time.Hour)
	seedOrderForUser(t, db, userID, "ORD-2601-20001", base)
	newest := seedOrderForUser(t, db, userID, "ORD-2601-20002", base.Add(30*time.Minute))
	seedOrderForUser(t, db, uuid.New(), "ORD-2601-20003", base.Add(45*time.Minute))

	rows, err := repo.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newest.OrderNumber, rows[0].OrderNumber)

	limited, err := repo.ListByUser(ctx, userID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRepositoryUpdateAppliesColumns(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := seedOrderForUser(t, db, uuid.New(), "ORD-2601-30001", time.Now())
	paidAt := time.Now().UTC()

	err := repo.Update(ctx, seeded.ID, map[string]any{
		"status":         enums.OrderStatusProcessing,
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        paidAt,
	})
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, found.Status)
	assert.Equal(t, enums.PaymentStatusPaid, found.PaymentStatus)
	require.NotNil(t, found.PaidAt)
}
