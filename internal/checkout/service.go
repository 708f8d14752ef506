package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/cart"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/catalog"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/notifications"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/orders"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/metrics"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CheckoutInput carries the data the client supplies when converting a cart.
// The monetary adjustments arrive precomputed from the pricing layer.
type CheckoutInput struct {
	ShippingAddress types.Address
	BillingAddress  *types.Address
	Notes           *string
	TaxCents        int
	ShippingCents   int
	DiscountCents   int
}

// Service converts the active cart into a durable order.
type Service interface {
	Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*models.Order, error)
}

type service struct {
	carts      cart.CartRepository
	products   catalog.ProductRepository
	orders     orders.OrderRepository
	tx         txRunner
	dispatcher notifications.Dispatcher
	metrics    *metrics.OrderFlowMetrics
}

// NewService builds the checkout service.
func NewService(
	carts cart.CartRepository,
	products catalog.ProductRepository,
	orderRepo orders.OrderRepository,
	tx txRunner,
	dispatcher notifications.Dispatcher,
	orderMetrics *metrics.OrderFlowMetrics,
) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	return &service{
		carts:      carts,
		products:   products,
		orders:     orderRepo,
		tx:         tx,
		dispatcher: dispatcher,
		metrics:    orderMetrics,
	}, nil
}

// Execute validates the active cart and writes the order, order items, cart
// conversion and counter increment in one transaction. A unique violation on
// the order number means another checkout won the same sequence slot, and a
// deadlock or lock timeout means the transaction lost a race it can win next
// time; either way the whole transaction is retried with a fresh number.
func (s *service) Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*models.Order, error) {
	if err := validateInput(input); err != nil {
		s.metrics.IncCheckout("validation_failed")
		return nil, err
	}

	var order *models.Order
	backoff := retry.WithMaxRetries(2, retry.NewConstant(25*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		created, terr := s.attempt(ctx, userID, input)
		if terr != nil {
			if retryableAttempt(terr) {
				return retry.RetryableError(terr)
			}
			return terr
		}
		order = created
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.IncCheckout(string(typed.Code()))
			return nil, typed
		}
		s.metrics.IncCheckout("failure")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout")
	}

	s.metrics.IncCheckout("success")
	s.dispatcher.OrderConfirmation(ctx, order)
	return order, nil
}

// retryableAttempt classifies transaction failures that a fresh attempt can
// resolve: order-number collisions and serialization losses.
func retryableAttempt(err error) bool {
	return db.IsUniqueViolation(err, "") || db.IsSerializationFailure(err)
}

func (s *service) attempt(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		productRepo := s.products.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		record, terr := cartRepo.FindActiveByUser(ctx, userID)
		if terr != nil {
			if errors.Is(terr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "load active cart")
		}

		lines, terr := s.loadLines(ctx, productRepo, record.Items)
		if terr != nil {
			return terr
		}
		if terr := ValidateStock(lines); terr != nil {
			return terr
		}

		subtotal := 0
		for _, line := range lines {
			subtotal += line.UnitPriceCents() * line.Item.Quantity
		}
		total := subtotal + input.TaxCents + input.ShippingCents - input.DiscountCents
		if total < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order value")
		}

		now := time.Now().UTC()
		number, terr := NextOrderNumber(ctx, tx, now)
		if terr != nil {
			return terr
		}

		shipping := input.ShippingAddress
		billing := input.BillingAddress
		if billing == nil {
			billing = &shipping
		}
		created := &models.Order{
			OrderNumber:     number,
			UserID:          userID,
			SubtotalCents:   subtotal,
			TaxCents:        input.TaxCents,
			ShippingCents:   input.ShippingCents,
			DiscountCents:   input.DiscountCents,
			TotalCents:      total,
			ShippingAddress: &shipping,
			BillingAddress:  billing,
			Notes:           input.Notes,
			Items:           buildOrderItems(lines),
		}
		if _, terr := orderRepo.Create(ctx, created); terr != nil {
			return terr
		}

		if terr := cartRepo.UpdateStatus(ctx, record.ID, enums.CartStatusConverted, &now); terr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "convert cart")
		}
		if terr := cartRepo.DeleteItems(ctx, record.ID); terr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "clear cart")
		}

		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) loadLines(ctx context.Context, productRepo catalog.ProductRepository, items []models.CartItem) ([]LineSnapshot, error) {
	productIDs := make([]uuid.UUID, 0, len(items))
	variantIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
		if item.VariantID != nil {
			variantIDs = append(variantIDs, *item.VariantID)
		}
	}

	productRows, err := productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	variantRows, err := productRepo.FindVariantsByIDs(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}

	lines := make([]LineSnapshot, 0, len(items))
	for _, item := range items {
		product, ok := productRows[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product no longer exists").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		line := LineSnapshot{Item: item, Product: product}
		if item.VariantID != nil {
			variant, ok := variantRows[*item.VariantID]
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "product variant no longer exists").
					WithDetails(map[string]any{"variant_id": item.VariantID.String()})
			}
			line.Variant = variant
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func buildOrderItems(lines []LineSnapshot) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		item := models.OrderItem{
			ProductID:      line.Item.ProductID,
			VariantID:      line.Item.VariantID,
			Name:           line.Product.Title,
			SKU:            line.SKU(),
			Thumbnail:      line.Product.Thumbnail,
			UnitPriceCents: line.UnitPriceCents(),
			Quantity:       line.Item.Quantity,
			SubtotalCents:  line.UnitPriceCents() * line.Item.Quantity,
		}
		if line.Variant != nil {
			title := line.Variant.Title
			item.VariantTitle = &title
		}
		items = append(items, item)
	}
	return items
}

func validateInput(input CheckoutInput) error {
	if field := input.ShippingAddress.Validate(); field != "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping address").
			WithDetails(map[string]any{"missing": field})
	}
	if input.BillingAddress != nil {
		if field := input.BillingAddress.Validate(); field != "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid billing address").
				WithDetails(map[string]any{"missing": field})
		}
	}
	if input.TaxCents < 0 || input.ShippingCents < 0 || input.DiscountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "monetary adjustments must not be negative")
	}
	return nil
}
