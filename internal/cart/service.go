package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/catalog"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AddItemInput captures the payload required to place a product in the cart.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Service exposes cart operations for the authenticated shopper.
type Service interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error)
}

type service struct {
	repo     CartRepository
	products catalog.ProductRepository
	tx       txRunner
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, products catalog.ProductRepository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, products: products, tx: tx}, nil
}

// GetActive returns the user's active cart, creating an empty one when none
// exists yet.
func (s *service) GetActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	record, err := s.repo.FindActiveByUser(ctx, userID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	created, err := s.repo.Create(ctx, &models.Cart{UserID: userID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return created, nil
}

// AddItem validates the catalog reference and merges the quantity into an
// existing line when the same product and variant is already in the cart.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	if input.VariantID != nil {
		variant, verr := s.products.FindVariantByID(ctx, *input.VariantID)
		if verr != nil {
			if errors.Is(verr, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, verr, "load product variant")
		}
		if variant.ProductID != product.ID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, terr := s.activeCart(ctx, repo, userID)
		if terr != nil {
			return terr
		}

		if existing := findLine(record.Items, input.ProductID, input.VariantID); existing != nil {
			return repo.UpdateItemQuantity(ctx, existing.ID, existing.Quantity+input.Quantity)
		}
		_, terr = repo.AddItem(ctx, &models.CartItem{
			CartID:    record.ID,
			ProductID: input.ProductID,
			VariantID: input.VariantID,
			Quantity:  input.Quantity,
		})
		return terr
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindActiveByUser(ctx, userID)
}

// UpdateItemQuantity replaces the quantity of one line in the active cart.
func (s *service) UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, terr := repo.FindActiveByUser(ctx, userID)
		if terr != nil {
			if errors.Is(terr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "load active cart")
		}
		item, terr := repo.FindItem(ctx, record.ID, itemID)
		if terr != nil {
			if errors.Is(terr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "load cart item")
		}
		return repo.UpdateItemQuantity(ctx, item.ID, quantity)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindActiveByUser(ctx, userID)
}

// RemoveItem deletes one line from the active cart.
func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, terr := repo.FindActiveByUser(ctx, userID)
		if terr != nil {
			if errors.Is(terr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "load active cart")
		}
		item, terr := repo.FindItem(ctx, record.ID, itemID)
		if terr != nil {
			if errors.Is(terr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, terr, "load cart item")
		}
		return repo.RemoveItem(ctx, item.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindActiveByUser(ctx, userID)
}

func (s *service) activeCart(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	record, err := repo.FindActiveByUser(ctx, userID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	return repo.Create(ctx, &models.Cart{UserID: userID})
}

func findLine(items []models.CartItem, productID uuid.UUID, variantID *uuid.UUID) *models.CartItem {
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}
		if (items[i].VariantID == nil) != (variantID == nil) {
			continue
		}
		if variantID != nil && *items[i].VariantID != *variantID {
			continue
		}
		return &items[i]
	}
	return nil
}
