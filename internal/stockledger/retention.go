package stockledger

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

// DeleteLogsBefore prunes audit rows older than the cutoff. Only retention
// jobs call this; the ledger itself never deletes its history.
func DeleteLogsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	result := tx.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.InventoryLog{})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "pruning inventory logs")
	}
	return result.RowsAffected, nil
}
