package checkout

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/cart"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/catalog"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/orders"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type noopDispatcher struct {
	confirmations int
}

func (d *noopDispatcher) OrderConfirmation(ctx context.Context, order *models.Order) {
	d.confirmations++
}
func (d *noopDispatcher) OrderStatusUpdate(ctx context.Context, order *models.Order, previous enums.OrderStatus) {
}
func (d *noopDispatcher) OrderCancelled(ctx context.Context, order *models.Order) {}

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{4}-\d{5}$`)

func validAddress() types.Address {
	return types.Address{
		Recipient:  "Tran Van Hung",
		Phone:      "+84 900 000 000",
		Line1:      "12 Nguyen Trai",
		City:       "Ho Chi Minh City",
		State:      "HCM",
		PostalCode: "700000",
		Country:    "VN",
	}
}

func TestExecuteConvertsCartIntoOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, dispatched := newTestService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	phone := seedProduct(t, db, "SKU-PHONE", 10, 49900)
	variant := seedVariant(t, db, phone.ID, "SKU-PHONE-BLK", 52900, 5)
	charger := seedProduct(t, db, "SKU-CHARGER", 3, 1900)

	seedCart(t, db, userID,
		models.CartItem{ProductID: phone.ID, VariantID: &variant.ID, Quantity: 2},
		models.CartItem{ProductID: charger.ID, Quantity: 1},
	)

	order, err := svc.Execute(ctx, userID, CheckoutInput{
		ShippingAddress: validAddress(),
		TaxCents:        1000,
		ShippingCents:   500,
		DiscountCents:   400,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	wantSubtotal := 52900*2 + 1900
	if order.SubtotalCents != wantSubtotal {
		t.Fatalf("expected subtotal %d, got %d", wantSubtotal, order.SubtotalCents)
	}
	if order.TotalCents != wantSubtotal+1000+500-400 {
		t.Fatalf("unexpected total %d", order.TotalCents)
	}
	if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("expected pending/pending, got %s/%s", order.Status, order.PaymentStatus)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	for _, item := range order.Items {
		if item.VariantID != nil {
			if item.SKU != "SKU-PHONE-BLK" || item.UnitPriceCents != 52900 {
				t.Fatalf("variant snapshot wrong: %+v", item)
			}
			if item.VariantTitle == nil {
				t.Fatal("expected variant title snapshot")
			}
		}
		if item.SubtotalCents != item.UnitPriceCents*item.Quantity {
			t.Fatalf("line subtotal mismatch: %+v", item)
		}
	}
	// billing defaults to the shipping address
	if order.BillingAddress == nil || order.BillingAddress.Line1 != "12 Nguyen Trai" {
		t.Fatalf("expected billing address fallback, got %+v", order.BillingAddress)
	}

	// stock is untouched until payment succeeds
	if got := loadStock(t, db, phone.ID); got != 10 {
		t.Fatalf("expected phone stock 10, got %d", got)
	}

	// the cart is converted and emptied
	var converted models.Cart
	if err := db.First(&converted, "user_id = ?", userID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if converted.Status != enums.CartStatusConverted || converted.ConvertedAt == nil {
		t.Fatalf("expected converted cart, got %+v", converted)
	}
	var itemCount int64
	if err := db.Model(&models.CartItem{}).Where("cart_id = ?", converted.ID).Count(&itemCount).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}
	if itemCount != 0 {
		t.Fatalf("expected emptied cart, got %d items", itemCount)
	}

	if dispatched.confirmations != 1 {
		t.Fatalf("expected 1 confirmation, got %d", dispatched.confirmations)
	}
}

func TestExecuteEmptyCartRejected(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	ctx := context.Background()
	userID := uuid.New()
	seedCart(t, db, userID)

	_, err := svc.Execute(ctx, userID, CheckoutInput{ShippingAddress: validAddress()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecuteNoActiveCart(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)

	_, err := svc.Execute(context.Background(), uuid.New(), CheckoutInput{ShippingAddress: validAddress()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExecuteInsufficientStockNamesLines(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	phone := seedProduct(t, db, "SKU-PHONE", 1, 49900)
	seedCart(t, db, userID, models.CartItem{ProductID: phone.ID, Quantity: 3})

	_, err := svc.Execute(ctx, userID, CheckoutInput{ShippingAddress: validAddress()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected detail map, got %T", typed.Details())
	}
	lines, ok := details["lines"].([]map[string]any)
	if !ok || len(lines) != 1 {
		t.Fatalf("expected one failing line, got %v", details["lines"])
	}
	if lines[0]["sku"] != "SKU-PHONE" {
		t.Fatalf("expected failing sku named, got %v", lines[0])
	}

	// no order row leaked out of the aborted transaction
	var count int64
	if err := db.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no orders, got %d", count)
	}
}

func TestExecuteRejectsNegativeAdjustments(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)

	_, err := svc.Execute(context.Background(), uuid.New(), CheckoutInput{
		ShippingAddress: validAddress(),
		DiscountCents:   -100,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOrderNumbersAreSequentialPerPeriod(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	var first, second string
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		if first, terr = NextOrderNumber(ctx, tx, now); terr != nil {
			return terr
		}
		second, terr = NextOrderNumber(ctx, tx, now)
		return terr
	})
	if err != nil {
		t.Fatalf("allocate numbers: %v", err)
	}

	if first != "ORD-2601-00001" {
		t.Fatalf("unexpected first number %q", first)
	}
	if second != "ORD-2601-00002" {
		t.Fatalf("unexpected second number %q", second)
	}

	// a new period restarts the sequence
	var next string
	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		next, terr = NextOrderNumber(ctx, tx, now.AddDate(0, 1, 0))
		return terr
	})
	if err != nil {
		t.Fatalf("allocate in new period: %v", err)
	}
	if next != "ORD-2602-00001" {
		t.Fatalf("unexpected number %q", next)
	}
}

type flakyTxRunner struct {
	inner    gormTxRunner
	failures int
}

func (r *flakyTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.failures > 0 {
		r.failures--
		return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	}
	return r.inner.WithTx(ctx, fn)
}

func TestExecuteRetriesSerializationFailure(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	dispatched := &noopDispatcher{}
	runner := &flakyTxRunner{inner: gormTxRunner{db: db}, failures: 1}
	svc, err := NewService(
		cart.NewRepository(db),
		catalog.NewRepository(db),
		orders.NewRepository(db),
		runner,
		dispatched,
		nil,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	userID := uuid.New()
	phone := seedProduct(t, db, "SKU-PHONE", 5, 49900)
	seedCart(t, db, userID, models.CartItem{ProductID: phone.ID, Quantity: 1})

	order, err := svc.Execute(context.Background(), userID, CheckoutInput{ShippingAddress: validAddress()})
	if err != nil {
		t.Fatalf("execute after transient failure: %v", err)
	}
	if runner.failures != 0 {
		t.Fatal("transient failure was not consumed")
	}
	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if dispatched.confirmations != 1 {
		t.Fatalf("expected one confirmation, got %d", dispatched.confirmations)
	}
}

func TestValidateStockReportsAllFailures(t *testing.T) {
	t.Parallel()

	active := &models.Product{SKU: "A", Title: "A", PriceCents: 100, Stock: 1, IsActive: true}
	inactive := &models.Product{SKU: "B", Title: "B", PriceCents: 100, Stock: 10, IsActive: false}

	err := ValidateStock([]LineSnapshot{
		{Item: models.CartItem{Quantity: 2}, Product: active},
		{Item: models.CartItem{Quantity: 1}, Product: inactive},
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := typed.Details().(map[string]any)
	lines := details["lines"].([]map[string]any)
	if len(lines) != 2 {
		t.Fatalf("expected both failures reported, got %v", lines)
	}
}

func newTestService(t *testing.T, db *gorm.DB) (Service, *noopDispatcher) {
	t.Helper()
	dispatched := &noopDispatcher{}
	svc, err := NewService(
		cart.NewRepository(db),
		catalog.NewRepository(db),
		orders.NewRepository(db),
		gormTxRunner{db: db},
		dispatched,
		nil,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, dispatched
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Product{},
		&models.ProductVariant{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderCounter{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, stock, priceCents int) *models.Product {
	t.Helper()
	product := models.Product{SKU: sku, Title: sku, PriceCents: priceCents, Stock: stock, IsActive: true}
	product.ID = uuid.New()
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product %s: %v", sku, err)
	}
	return &product
}

func seedVariant(t *testing.T, db *gorm.DB, productID uuid.UUID, sku string, priceCents, stock int) *models.ProductVariant {
	t.Helper()
	variant := models.ProductVariant{ProductID: productID, SKU: sku, Title: "Black", PriceCents: priceCents, Stock: stock}
	variant.ID = uuid.New()
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant %s: %v", sku, err)
	}
	return &variant
}

func seedCart(t *testing.T, db *gorm.DB, userID uuid.UUID, items ...models.CartItem) *models.Cart {
	t.Helper()
	record := models.Cart{UserID: userID, Status: enums.CartStatusActive, Items: items}
	record.ID = uuid.New()
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	return &record
}

func loadStock(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := db.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}
