package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/api/responses"
	"github.com/minhvo-dev/ordercore-backend/api/validators"
	"github.com/minhvo-dev/ordercore-backend/internal/stockledger"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type dlqLister interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
}

type stockAdjustRequest struct {
	SkuID uuid.UUID `json:"sku_id" validate:"required"`
	Delta int       `json:"delta" validate:"required"`
	// OperationID makes retried submissions no-ops. One is generated when
	// the client does not supply it.
	OperationID string `json:"operation_id,omitempty"`
}

// AdminAdjustStock applies a manual inventory correction through the ledger
// so the audit trail stays complete.
func AdminAdjustStock(db txRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload stockAdjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operationID := payload.OperationID
		if operationID == "" {
			operationID = "adjust:" + uuid.NewString()
		}

		err = db.WithTx(r.Context(), func(tx *gorm.DB) error {
			return stockledger.Adjust(r.Context(), tx, operationID, payload.SkuID, payload.Delta, enums.InventoryReasonManual, &userID)
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"status":       "adjusted",
			"operation_id": operationID,
		})
	}
}

// AdminListDLQ surfaces dead-lettered outbox events for manual inspection.
func AdminListDLQ(repo dlqLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _, err := pagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := repo.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
