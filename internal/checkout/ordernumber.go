package checkout

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
)

const orderNumberPrefix = "ORD"

// NextOrderNumber allocates the next order number for the current period by
// atomically incrementing the per-period counter row. The upsert serializes
// concurrent checkouts on the counter row, so two transactions can never
// observe the same sequence value.
func NextOrderNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "transaction required for order numbering")
	}
	period := now.UTC().Format("0601")

	var seq int64
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO order_counters (period, seq) VALUES (?, 1)
		ON CONFLICT (period) DO UPDATE SET seq = order_counters.seq + 1, updated_at = CURRENT_TIMESTAMP
		RETURNING seq
	`, period).Scan(&seq).Error
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
	}
	return fmt.Sprintf("%s-%s-%05d", orderNumberPrefix, period, seq), nil
}
