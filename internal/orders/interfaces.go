package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
)

// Repository exposes the persistence operations the order pipeline needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	CreateShipment(ctx context.Context, shipment *models.Shipment) error
	FindShipmentByTrackingCode(ctx context.Context, trackingCode string) (*models.Shipment, error)
	UpdateShipmentStatus(ctx context.Context, id uuid.UUID, status enums.ShipmentStatus) error
	UpdatePaymentStatusByOrder(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) error
	UpdatePaymentByOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
}
