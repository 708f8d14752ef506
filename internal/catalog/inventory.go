package catalog

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db/models"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
)

// StockLine identifies one stock counter to adjust. When VariantID is set the
// variant-level counter is used, otherwise the product-level counter.
type StockLine struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// StockAdjuster mutates stock counters inside a caller-owned transaction.
type StockAdjuster interface {
	Decrement(ctx context.Context, tx *gorm.DB, lines []StockLine) error
	Restore(ctx context.Context, tx *gorm.DB, lines []StockLine) error
}

// LockStockRows takes FOR UPDATE locks on every product and variant row the
// given stock mutations will touch. Rows are locked in a fixed order, products
// before variants with ids ascending, so a payment confirmation and a
// cancellation hitting the same counters cannot deadlock on each other.
func LockStockRows(ctx context.Context, tx *gorm.DB, lines []StockLine) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock locking")
	}
	productIDs := map[uuid.UUID]struct{}{}
	variantIDs := map[uuid.UUID]struct{}{}
	for _, line := range lines {
		if line.VariantID != nil {
			variantIDs[*line.VariantID] = struct{}{}
			continue
		}
		productIDs[line.ProductID] = struct{}{}
	}

	if len(productIDs) > 0 {
		var locked []models.Product
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", sortedIDs(productIDs)).
			Order("id").
			Find(&locked).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock product rows")
		}
	}
	if len(variantIDs) > 0 {
		var locked []models.ProductVariant
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", sortedIDs(variantIDs)).
			Order("id").
			Find(&locked).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock variant rows")
		}
	}
	return nil
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

type stockAdjusterImpl struct{}

// NewStockAdjuster exposes the default stock mutation implementation.
func NewStockAdjuster() StockAdjuster {
	return stockAdjusterImpl{}
}

// Decrement subtracts the requested quantity from each line's counter. The
// UPDATE is guarded by the current stock level: when another transaction
// drained the counter first, zero rows match and the whole call fails with a
// conflict so the caller can roll back.
func (stockAdjusterImpl) Decrement(ctx context.Context, tx *gorm.DB, lines []StockLine) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock decrement")
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		var res *gorm.DB
		if line.VariantID != nil {
			res = tx.WithContext(ctx).Exec(`
				UPDATE product_variants
				SET stock = stock - ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND stock >= ?
			`, line.Quantity, *line.VariantID, line.Quantity)
		} else {
			res = tx.WithContext(ctx).Exec(`
				UPDATE products
				SET stock = stock - ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND stock >= ?
			`, line.Quantity, line.ProductID, line.Quantity)
		}
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").WithDetails(map[string]any{
				"product_id": line.ProductID.String(),
				"requested":  line.Quantity,
			})
		}
	}
	return nil
}

// Restore returns previously decremented quantities to their counters.
func (stockAdjusterImpl) Restore(ctx context.Context, tx *gorm.DB, lines []StockLine) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock restore")
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		var res *gorm.DB
		if line.VariantID != nil {
			res = tx.WithContext(ctx).Exec(`
				UPDATE product_variants
				SET stock = stock + ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, line.Quantity, *line.VariantID)
		} else {
			res = tx.WithContext(ctx).Exec(`
				UPDATE products
				SET stock = stock + ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, line.Quantity, line.ProductID)
		}
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("stock row missing for product %s", line.ProductID))
		}
	}
	return nil
}
