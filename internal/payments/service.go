// Package payments initiates gateway payments. Each provider is a Strategy
// keyed by payment method; the service only routes. Confirmation is the
// mirror image and lives in internal/payments/confirm.
package payments

import (
	"context"
	"fmt"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

// Initiation is what the buyer needs to complete a gateway payment.
type Initiation struct {
	Provider    string
	RedirectURL string
}

// Strategy initiates payment for one provider.
type Strategy interface {
	Method() enums.PaymentMethod
	Initiate(ctx context.Context, order *models.Order) (*Initiation, error)
}

// Service routes initiation to the strategy registered for the order's
// payment method.
type Service struct {
	strategies map[enums.PaymentMethod]Strategy
}

// NewService registers the given strategies.
func NewService(strategies ...Strategy) (*Service, error) {
	byMethod := make(map[enums.PaymentMethod]Strategy, len(strategies))
	for _, strategy := range strategies {
		if strategy == nil {
			continue
		}
		method := strategy.Method()
		if _, exists := byMethod[method]; exists {
			return nil, fmt.Errorf("duplicate payment strategy for method %q", method)
		}
		byMethod[method] = strategy
	}
	return &Service{strategies: byMethod}, nil
}

// Initiate starts the payment flow for the order. Cash on delivery needs no
// initiation and returns nil.
func (s *Service) Initiate(ctx context.Context, order *models.Order) (*Initiation, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !order.PaymentMethod.RequiresInitiation() {
		return nil, nil
	}
	strategy, ok := s.strategies[order.PaymentMethod]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no payment strategy registered").
			WithDetails(map[string]any{"method": order.PaymentMethod})
	}
	return strategy.Initiate(ctx, order)
}
