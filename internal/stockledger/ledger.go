// Package stockledger owns every mutation of the per-SKU stock counters.
// All operations run inside the caller's transaction, lock the counter rows
// FOR UPDATE in deterministic order and append one audit row per mutation.
// The (sku_id, operation_id) unique index makes replays of the same logical
// operation a no-op.
package stockledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

// Request asks for qty units of a single SKU.
type Request struct {
	SkuID uuid.UUID
	Qty   int
}

// Shortage reports one SKU that could not satisfy a reservation.
type Shortage struct {
	SkuID     uuid.UUID `json:"skuId"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Reserve places holds for every request or none of them. On shortage it
// returns CodeInsufficientStock with a Shortage list covering all failing
// SKUs so the caller can surface every problem at once.
func Reserve(ctx context.Context, tx *gorm.DB, operationID string, requests []Request, actorID *uuid.UUID) error {
	reqs, err := normalize(operationID, requests)
	if err != nil {
		return err
	}

	var shortages []Shortage
	for _, req := range reqs {
		replayed, err := alreadyApplied(tx, req.SkuID, operationID)
		if err != nil {
			return err
		}
		if replayed {
			continue
		}

		item, err := lockItem(tx, req.SkuID)
		if err != nil {
			return err
		}
		if req.Qty > item.Available() {
			shortages = append(shortages, Shortage{
				SkuID:     req.SkuID,
				Requested: req.Qty,
				Available: item.Available(),
			})
			continue
		}

		previous := *item
		item.Reserved += req.Qty
		if err := apply(tx, item, previous, operationID, req.Qty, enums.InventoryReasonReserve, actorID); err != nil {
			return err
		}
	}

	if len(shortages) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for one or more items").
			WithDetails(shortages)
	}
	return nil
}

// Finalize converts holds into permanent deductions after payment succeeds.
func Finalize(ctx context.Context, tx *gorm.DB, operationID string, requests []Request, actorID *uuid.UUID) error {
	reqs, err := normalize(operationID, requests)
	if err != nil {
		return err
	}

	for _, req := range reqs {
		replayed, err := alreadyApplied(tx, req.SkuID, operationID)
		if err != nil {
			return err
		}
		if replayed {
			continue
		}

		item, err := lockItem(tx, req.SkuID)
		if err != nil {
			return err
		}
		if req.Qty > item.Reserved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "finalize exceeds reserved quantity").
				WithDetails(map[string]any{"skuId": req.SkuID, "requested": req.Qty, "reserved": item.Reserved})
		}

		previous := *item
		item.Stock -= req.Qty
		item.Reserved -= req.Qty
		if err := apply(tx, item, previous, operationID, -req.Qty, enums.InventoryReasonFinalize, actorID); err != nil {
			return err
		}
	}
	return nil
}

// Release undoes the stock effect of an order. Before finalization that means
// dropping the hold; after finalization the units were already deducted, so
// they go back into sellable stock.
func Release(ctx context.Context, tx *gorm.DB, operationID string, requests []Request, wasFinalized bool, actorID *uuid.UUID) error {
	reqs, err := normalize(operationID, requests)
	if err != nil {
		return err
	}

	for _, req := range reqs {
		replayed, err := alreadyApplied(tx, req.SkuID, operationID)
		if err != nil {
			return err
		}
		if replayed {
			continue
		}

		item, err := lockItem(tx, req.SkuID)
		if err != nil {
			return err
		}

		previous := *item
		change := req.Qty
		if wasFinalized {
			item.Stock += req.Qty
		} else {
			if req.Qty > item.Reserved {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "release exceeds reserved quantity").
					WithDetails(map[string]any{"skuId": req.SkuID, "requested": req.Qty, "reserved": item.Reserved})
			}
			item.Reserved -= req.Qty
			change = -req.Qty
		}
		if err := apply(tx, item, previous, operationID, change, enums.InventoryReasonRelease, actorID); err != nil {
			return err
		}
	}
	return nil
}

// Adjust applies a signed stock delta outside the order flow (restock or
// manual correction). Negative deltas may not cut into reserved units.
func Adjust(ctx context.Context, tx *gorm.DB, operationID string, skuID uuid.UUID, delta int, reason enums.InventoryChangeReason, actorID *uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if operationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation id is required")
	}
	if delta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock delta must be non-zero")
	}
	if reason != enums.InventoryReasonRestock && reason != enums.InventoryReasonManual {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported adjustment reason")
	}

	replayed, err := alreadyApplied(tx, skuID, operationID)
	if err != nil {
		return err
	}
	if replayed {
		return nil
	}

	item, err := lockItem(tx, skuID)
	if err != nil {
		return err
	}
	if item.Stock+delta < item.Reserved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would cut into reserved stock").
			WithDetails(map[string]any{"skuId": skuID, "delta": delta, "stock": item.Stock, "reserved": item.Reserved})
	}

	previous := *item
	item.Stock += delta
	return apply(tx, item, previous, operationID, delta, reason, actorID)
}

func normalize(operationID string, requests []Request) ([]Request, error) {
	if operationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operation id is required")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one stock request is required")
	}

	merged := make(map[uuid.UUID]int, len(requests))
	for _, req := range requests {
		if req.SkuID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku id is required")
		}
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"skuId": req.SkuID, "qty": req.Qty})
		}
		merged[req.SkuID] += req.Qty
	}

	out := make([]Request, 0, len(merged))
	for skuID, qty := range merged {
		out = append(out, Request{SkuID: skuID, Qty: qty})
	}
	// lock rows in a stable order so concurrent multi-SKU operations
	// cannot deadlock each other
	sort.Slice(out, func(i, j int) bool {
		return out[i].SkuID.String() < out[j].SkuID.String()
	})
	return out, nil
}

func alreadyApplied(tx *gorm.DB, skuID uuid.UUID, operationID string) (bool, error) {
	var count int64
	err := tx.Model(&models.InventoryLog{}).
		Where("sku_id = ? AND operation_id = ?", skuID, operationID).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking inventory log")
	}
	return count > 0, nil
}

func lockItem(tx *gorm.DB, skuID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku_id = ?", skuID).
		First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found").
				WithDetails(map[string]any{"skuId": skuID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking inventory item")
	}
	return &item, nil
}

func apply(tx *gorm.DB, item *models.InventoryItem, previous models.InventoryItem, operationID string, change int, reason enums.InventoryChangeReason, actorID *uuid.UUID) error {
	if item.Reserved < 0 || item.Reserved > item.Stock {
		return pkgerrors.New(pkgerrors.CodeInternal, "inventory counters violated 0 <= reserved <= stock").
			WithDetails(map[string]any{"skuId": item.SkuID, "stock": item.Stock, "reserved": item.Reserved})
	}

	err := tx.Model(&models.InventoryItem{}).
		Where("sku_id = ?", item.SkuID).
		Updates(map[string]any{"stock": item.Stock, "reserved": item.Reserved}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating inventory counters")
	}

	logRow := models.InventoryLog{
		ID:               uuid.New(),
		SkuID:            item.SkuID,
		OperationID:      operationID,
		ChangeAmount:     change,
		PreviousStock:    previous.Stock,
		NewStock:         item.Stock,
		PreviousReserved: previous.Reserved,
		NewReserved:      item.Reserved,
		Reason:           reason,
		ActorID:          actorID,
	}
	if err := tx.Create(&logRow).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing inventory log")
	}
	return nil
}
