// internal/domain/warehouse/transfer.go
package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// TransferRequest represents a stock move between two warehouses
type TransferRequest struct {
	SourceWarehouseID uint   `json:"source_warehouse_id" binding:"required"`
	DestWarehouseID   uint   `json:"dest_warehouse_id" binding:"required"`
	ProductID         uint   `json:"product_id" binding:"required"`
	VariantID         *uint  `json:"variant_id"`
	Quantity          int    `json:"quantity" binding:"required"`
	Notes             string `json:"notes"`
	CreatedBy         uint   `json:"-"`
}

// TransferResult reports a completed transfer. TransferID links the
// outbound and inbound movement log entries.
type TransferResult struct {
	TransferID        string `json:"transfer_id"`
	SourceWarehouseID uint   `json:"source_warehouse_id"`
	DestWarehouseID   uint   `json:"dest_warehouse_id"`
	ProductID         uint   `json:"product_id"`
	VariantID         *uint  `json:"variant_id,omitempty"`
	Quantity          int    `json:"quantity"`
	SourceRemaining   int    `json:"source_remaining"`
	DestQuantity      int    `json:"dest_quantity"`
}

// Transfer moves available stock between warehouses atomically. Both
// sides change in one transaction: a failed capacity or availability
// check leaves the source untouched. A distributed lock serializes
// transfers over the same warehouse pair across processes.
func (s *Service) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	if req.Quantity <= 0 {
		return nil, shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", req.Quantity)
	}
	if req.SourceWarehouseID == req.DestWarehouseID {
		return nil, shared.Wrap(shared.ErrInvalidInput, "source and destination warehouse are the same")
	}

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, transferLockKey(req.SourceWarehouseID, req.DestWarehouseID), s.config.Inventory.TransferLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, shared.Wrap(shared.ErrConcurrencyConflict,
					"transfer between warehouses %d and %d already in progress", req.SourceWarehouseID, req.DestWarehouseID)
			}
			return nil, fmt.Errorf("failed to obtain transfer lock: %w", err)
		}
		defer lock.Release(ctx)
	}

	transferID := uuid.New().String()
	result := &TransferResult{
		TransferID:        transferID,
		SourceWarehouseID: req.SourceWarehouseID,
		DestWarehouseID:   req.DestWarehouseID,
		ProductID:         req.ProductID,
		VariantID:         req.VariantID,
		Quantity:          req.Quantity,
	}

	var sourcePrev, destPrev int

	err := s.RunStockTx(func(tx *gorm.DB) error {
		// Lock the warehouse rows in ascending ID order so two
		// opposite transfers cannot deadlock each other.
		first, second := req.SourceWarehouseID, req.DestWarehouseID
		if second < first {
			first, second = second, first
		}
		if _, err := s.lockWarehouse(tx, first); err != nil {
			return err
		}
		if _, err := s.lockWarehouse(tx, second); err != nil {
			return err
		}

		var dest Warehouse
		if err := tx.Where("id = ?", req.DestWarehouseID).First(&dest).Error; err != nil {
			return fmt.Errorf("failed to load destination warehouse: %w", err)
		}

		source, err := s.findLine(tx, req.SourceWarehouseID, req.ProductID, req.VariantID)
		if err == gorm.ErrRecordNotFound {
			return shared.Wrap(shared.ErrInsufficientStock,
				"product %d: required %d, available 0 in warehouse %d", req.ProductID, req.Quantity, req.SourceWarehouseID)
		} else if err != nil {
			return err
		}

		if source.Available() < req.Quantity {
			return shared.Wrap(shared.ErrInsufficientStock,
				"product %d: required %d, available %d in warehouse %d", req.ProductID, req.Quantity, source.Available(), req.SourceWarehouseID)
		}

		destTotal, err := s.totalQuantity(tx, req.DestWarehouseID)
		if err != nil {
			return err
		}
		if !dest.HasCapacityFor(destTotal, req.Quantity) {
			return shared.Wrap(shared.ErrCapacityExceeded,
				"warehouse %s: adding %d exceeds capacity %d (currently %d)", dest.Code, req.Quantity, dest.Capacity, destTotal)
		}

		sourcePrev = source.Quantity
		source.Quantity -= req.Quantity
		result.SourceRemaining = source.Quantity
		if source.IsEmpty() {
			// Hard delete so a later receipt can recreate the line
			// without tripping the unique index on a soft-deleted row.
			if err := tx.Unscoped().Delete(source).Error; err != nil {
				return fmt.Errorf("failed to prune empty stock line: %w", err)
			}
		} else {
			if err := tx.Save(source).Error; err != nil {
				return fmt.Errorf("failed to update source stock line: %w", err)
			}
		}

		destLine, err := s.findLine(tx, req.DestWarehouseID, req.ProductID, req.VariantID)
		if err == gorm.ErrRecordNotFound {
			destLine = &StockLine{
				WarehouseID: req.DestWarehouseID,
				ProductID:   req.ProductID,
				VariantID:   req.VariantID,
			}
			if err := tx.Create(destLine).Error; err != nil {
				return fmt.Errorf("failed to create destination stock line: %w", err)
			}
		} else if err != nil {
			return err
		}

		destPrev = destLine.Quantity
		destLine.Quantity += req.Quantity
		result.DestQuantity = destLine.Quantity
		if err := tx.Save(destLine).Error; err != nil {
			return fmt.Errorf("failed to update destination stock line: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.RecordMovement(&StockMovement{
		WarehouseID:      req.SourceWarehouseID,
		ProductID:        req.ProductID,
		VariantID:        req.VariantID,
		MovementType:     MovementTypeTransferOut,
		Quantity:         req.Quantity,
		PreviousQuantity: sourcePrev,
		NewQuantity:      result.SourceRemaining,
		ReferenceType:    ReferenceTypeTransfer,
		TransferID:       transferID,
		Notes:            req.Notes,
		CreatedBy:        req.CreatedBy,
	})
	s.RecordMovement(&StockMovement{
		WarehouseID:      req.DestWarehouseID,
		ProductID:        req.ProductID,
		VariantID:        req.VariantID,
		MovementType:     MovementTypeTransferIn,
		Quantity:         req.Quantity,
		PreviousQuantity: destPrev,
		NewQuantity:      result.DestQuantity,
		ReferenceType:    ReferenceTypeTransfer,
		TransferID:       transferID,
		Notes:            req.Notes,
		CreatedBy:        req.CreatedBy,
	})

	return result, nil
}

// transferLockKey builds a warehouse-pair lock key that is identical
// for both transfer directions
func transferLockKey(a, b uint) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("inventory:transfer:%d:%d", a, b)
}
