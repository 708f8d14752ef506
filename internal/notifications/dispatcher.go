package notifications

import (
	"context"
	"fmt"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
)

// Dispatcher emits order lifecycle notifications. Callers invoke it after
// their transaction committed; a dispatch failure never fails the triggering
// operation, it is logged and dropped.
type Dispatcher interface {
	OrderConfirmation(ctx context.Context, order *models.Order)
	OrderStatusUpdate(ctx context.Context, order *models.Order, previous enums.OrderStatus)
	OrderCancelled(ctx context.Context, order *models.Order)
}

type dispatcher struct {
	repo Repository
	logg *logger.Logger
}

// NewDispatcher builds the persisting dispatcher.
func NewDispatcher(repo Repository, logg *logger.Logger) (Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &dispatcher{repo: repo, logg: logg}, nil
}

func (d *dispatcher) OrderConfirmation(ctx context.Context, order *models.Order) {
	d.create(ctx, &models.Notification{
		UserID:  order.UserID,
		OrderID: &order.ID,
		Kind:    enums.NotificationKindOrderConfirmation,
		Subject: fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		Payload: map[string]any{
			"order_number": order.OrderNumber,
			"total_cents":  order.TotalCents,
			"items":        len(order.Items),
		},
	})
}

func (d *dispatcher) OrderStatusUpdate(ctx context.Context, order *models.Order, previous enums.OrderStatus) {
	d.create(ctx, &models.Notification{
		UserID:  order.UserID,
		OrderID: &order.ID,
		Kind:    enums.NotificationKindOrderStatusUpdate,
		Subject: fmt.Sprintf("Order %s is now %s", order.OrderNumber, order.Status),
		Payload: map[string]any{
			"order_number":    order.OrderNumber,
			"previous_status": string(previous),
			"status":          string(order.Status),
			"payment_status":  string(order.PaymentStatus),
		},
	})
}

func (d *dispatcher) OrderCancelled(ctx context.Context, order *models.Order) {
	d.create(ctx, &models.Notification{
		UserID:  order.UserID,
		OrderID: &order.ID,
		Kind:    enums.NotificationKindOrderCancelled,
		Subject: fmt.Sprintf("Order %s cancelled", order.OrderNumber),
		Payload: map[string]any{
			"order_number": order.OrderNumber,
			"total_cents":  order.TotalCents,
		},
	})
}

func (d *dispatcher) create(ctx context.Context, notification *models.Notification) {
	if err := d.repo.Create(ctx, notification); err != nil {
		ctx = d.logg.WithFields(ctx, map[string]any{
			"kind":    string(notification.Kind),
			"user_id": notification.UserID.String(),
		})
		d.logg.Error(ctx, "notification dispatch failed", err)
	}
}
