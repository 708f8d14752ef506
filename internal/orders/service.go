package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/catalog"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/notifications"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Actor identifies who is performing an order operation. Admin actors bypass
// the ownership check.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

// Service exposes order lifecycle operations.
type Service interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	Repay(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error)
}

type service struct {
	repo       OrderRepository
	tx         txRunner
	stock      catalog.StockAdjuster
	dispatcher notifications.Dispatcher
	metrics    *metrics.OrderFlowMetrics
}

// NewService builds the order service.
func NewService(
	repo OrderRepository,
	tx txRunner,
	stock catalog.StockAdjuster,
	dispatcher notifications.Dispatcher,
	orderMetrics *metrics.OrderFlowMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock adjuster required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	return &service{
		repo:       repo,
		tx:         tx,
		stock:      stock,
		dispatcher: dispatcher,
		metrics:    orderMetrics,
	}, nil
}

// Get loads one order, scoped to the owner for non-admin actors.
func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	var err error
	if actor.Admin {
		order, err = s.repo.FindByID(ctx, orderID)
	} else {
		order, err = s.repo.FindByIDForUser(ctx, orderID, actor.UserID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// List returns the user's most recent orders.
func (s *service) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

// Cancel voids a pending or processing order. When payment already went
// through, the stock decremented at payment time is returned inside the same
// transaction, so the counters and the order row always move together.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, terr := s.lockOwned(ctx, repo, actor, orderID)
		if terr != nil {
			return terr
		}
		if !order.Status.IsCancellable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": string(order.Status)})
		}

		if order.PaymentStatus == enums.PaymentStatusPaid {
			lines := stockLines(order.Items)
			if terr := catalog.LockStockRows(ctx, tx, lines); terr != nil {
				return terr
			}
			if terr := s.stock.Restore(ctx, tx, lines); terr != nil {
				return terr
			}
		}

		now := time.Now().UTC()
		if terr := repo.Update(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
		}); terr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "cancel order")
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		cancelled = order
		return nil
	})
	if err != nil {
		s.metrics.IncCancellation("failure")
		return nil, err
	}

	s.metrics.IncCancellation("success")
	s.dispatcher.OrderCancelled(ctx, cancelled)
	return cancelled, nil
}

// Repay rearms a cancelled order, or one whose payment failed, for another
// payment attempt. Stock is untouched here: a paid-then-cancelled order
// already had its stock restored, and the next successful payment decrements
// again.
func (s *service) Repay(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	var rearmed *models.Order
	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, terr := s.lockOwned(ctx, repo, actor, orderID)
		if terr != nil {
			return terr
		}
		if order.Status != enums.OrderStatusCancelled && order.PaymentStatus != enums.PaymentStatusFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting repayment").
				WithDetails(map[string]any{
					"status":         string(order.Status),
					"payment_status": string(order.PaymentStatus),
				})
		}

		if terr := repo.Update(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusPending,
			"payment_status": enums.PaymentStatusPending,
			"payment_ref":    nil,
			"paid_at":        nil,
			"cancelled_at":   nil,
		}); terr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "reset order for repayment")
		}
		previous = order.Status
		order.Status = enums.OrderStatusPending
		order.PaymentStatus = enums.PaymentStatusPending
		order.PaymentRef = nil
		order.PaidAt = nil
		order.CancelledAt = nil
		rearmed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.OrderStatusUpdate(ctx, rearmed, previous)
	return rearmed, nil
}

// UpdateStatus advances the fulfillment state machine. Cancellation is not
// reachable through this path; it has its own compensation logic.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if next == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the cancel operation to cancel an order")
	}

	var updated *models.Order
	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, terr := repo.FindByIDForUpdate(ctx, orderID)
		if terr != nil {
			if errors.Is(terr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "load order")
		}
		if !order.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal status transition").
				WithDetails(map[string]any{
					"from": string(order.Status),
					"to":   string(next),
				})
		}

		if terr := repo.Update(ctx, order.ID, map[string]any{"status": next}); terr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "update order status")
		}
		previous = order.Status
		order.Status = next
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.OrderStatusUpdate(ctx, updated, previous)
	return updated, nil
}

func (s *service) lockOwned(ctx context.Context, repo OrderRepository, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.Admin && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func stockLines(items []models.OrderItem) []catalog.StockLine {
	lines := make([]catalog.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, catalog.StockLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return lines
}
