package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/catalog"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/notifications"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/orders"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GatewayEvent is the normalized payment notification delivered by the
// gateway webhook.
type GatewayEvent struct {
	EventID     string
	OrderNumber string
	Outcome     enums.PaymentOutcome
	PaymentRef  string
}

// Service reconciles gateway payment events with order state.
type Service interface {
	Reconcile(ctx context.Context, event GatewayEvent) error
}

type service struct {
	orders     orders.OrderRepository
	tx         txRunner
	stock      catalog.StockAdjuster
	dispatcher notifications.Dispatcher
	metrics    *metrics.OrderFlowMetrics
	logg       *logger.Logger
}

// NewService builds the payment reconciler.
func NewService(
	orderRepo orders.OrderRepository,
	tx txRunner,
	stock catalog.StockAdjuster,
	dispatcher notifications.Dispatcher,
	orderMetrics *metrics.OrderFlowMetrics,
	logg *logger.Logger,
) (Service, error) {
	if orderRepo == nil {
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
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		orders:     orderRepo,
		tx:         tx,
		stock:      stock,
		dispatcher: dispatcher,
		metrics:    orderMetrics,
		logg:       logg,
	}, nil
}

// Reconcile applies one gateway event to the referenced order. The order row
// is locked for the duration, so a payment racing a cancellation resolves to
// whichever transaction commits first, and the loser sees the winner's state.
// Re-delivered success events are no-ops once payment_status is paid, which
// is what keeps stock from being decremented twice.
func (s *service) Reconcile(ctx context.Context, event GatewayEvent) error {
	if event.OrderNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if !event.Outcome.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment outcome")
	}

	var (
		updated  *models.Order
		previous enums.OrderStatus
		applied  bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, terr := repo.FindByNumberForUpdate(ctx, event.OrderNumber)
		if terr != nil {
			if errors.Is(terr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
					WithDetails(map[string]any{"order_number": event.OrderNumber})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "load order")
		}

		if order.PaymentStatus == enums.PaymentStatusPaid {
			// duplicate delivery after a successful charge
			return nil
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled").
				WithDetails(map[string]any{"order_number": event.OrderNumber})
		}

		previous = order.Status
		switch event.Outcome {
		case enums.PaymentOutcomeSucceeded:
			lines := stockLines(order.Items)
			if terr := catalog.LockStockRows(ctx, tx, lines); terr != nil {
				return terr
			}
			if terr := s.stock.Decrement(ctx, tx, lines); terr != nil {
				return terr
			}
			now := time.Now().UTC()
			updates := map[string]any{
				"payment_status": enums.PaymentStatusPaid,
				"paid_at":        now,
			}
			if event.PaymentRef != "" {
				updates["payment_ref"] = event.PaymentRef
			}
			if order.Status == enums.OrderStatusPending {
				updates["status"] = enums.OrderStatusProcessing
				order.Status = enums.OrderStatusProcessing
			}
			if terr := repo.Update(ctx, order.ID, updates); terr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "mark order paid")
			}
			order.PaymentStatus = enums.PaymentStatusPaid
			order.PaidAt = &now
		case enums.PaymentOutcomeFailed:
			if terr := repo.Update(ctx, order.ID, map[string]any{
				"payment_status": enums.PaymentStatusFailed,
			}); terr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "mark payment failed")
			}
			order.PaymentStatus = enums.PaymentStatusFailed
		}

		updated = order
		applied = true
		return nil
	})
	if err != nil {
		s.metrics.IncPaymentEvent("error")
		return err
	}
	if !applied {
		s.metrics.IncPaymentEvent("duplicate")
		return nil
	}

	s.metrics.IncPaymentEvent(string(event.Outcome))
	s.logg.Info(s.logg.WithOrderNumber(ctx, event.OrderNumber),
		fmt.Sprintf("payment %s reconciled", event.Outcome))
	s.dispatcher.OrderStatusUpdate(ctx, updated, previous)
	return nil
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
