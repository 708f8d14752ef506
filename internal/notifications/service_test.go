package notifications

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
)

func TestDispatcherPersistsInboxEntries(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	dispatch, err := NewDispatcher(repo, logger.New(logger.Options{Level: zerolog.ErrorLevel}))
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}

	order := &models.Order{
		OrderNumber: "ORD-2601-00001",
		UserID:      uuid.New(),
		Status:      enums.OrderStatusProcessing,
		TotalCents:  10000,
	}
	order.ID = uuid.New()

	dispatch.OrderConfirmation(ctx, order)
	dispatch.OrderStatusUpdate(ctx, order, enums.OrderStatusPending)
	dispatch.OrderCancelled(ctx, order)

	rows, err := repo.ListRecent(ctx, order.UserID, 10, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(rows))
	}
	kinds := map[enums.NotificationKind]bool{}
	for _, row := range rows {
		kinds[row.Kind] = true
		if row.OrderID == nil || *row.OrderID != order.ID {
			t.Fatalf("notification not linked to order: %+v", row)
		}
	}
	if len(kinds) != 3 {
		t.Fatalf("expected one notification per kind, got %v", kinds)
	}
}

func TestMarkReadLifecycle(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	userID := uuid.New()
	row := &models.Notification{
		UserID:  userID,
		Kind:    enums.NotificationKindOrderConfirmation,
		Subject: "Order ORD-2601-00001 confirmed",
	}
	row.ID = uuid.New()
	if err := repo.Create(ctx, row); err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	if err := svc.MarkRead(ctx, userID, row.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	// already read is not an error
	if err := svc.MarkRead(ctx, userID, row.ID); err != nil {
		t.Fatalf("mark read twice: %v", err)
	}
	// another user cannot see it
	err = svc.MarkRead(ctx, uuid.New(), row.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	unread, err := svc.List(ctx, ListParams{UserID: userID, UnreadOnly: true})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread rows, got %d", len(unread))
	}
}

func TestMarkAllRead(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		row := &models.Notification{
			UserID:  userID,
			Kind:    enums.NotificationKindOrderStatusUpdate,
			Subject: "update",
		}
		row.ID = uuid.New()
		if err := repo.Create(ctx, row); err != nil {
			t.Fatalf("seed notification: %v", err)
		}
	}

	count, err := svc.MarkAllRead(ctx, userID)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows updated, got %d", count)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Notification{}); err != nil {
		t.Fatalf("migrate notifications: %v", err)
	}
	return db
}
