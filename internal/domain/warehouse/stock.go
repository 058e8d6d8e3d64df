// internal/domain/warehouse/stock.go
package warehouse

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunStockTx executes fn in a transaction and retries it when the
// database aborts the transaction with a deadlock or serialization
// failure. Exhausted retries surface as a concurrency conflict.
// Services composing several stock mutations into one atomic unit
// run their closure through here and call the *Tx methods inside it.
func (s *Service) RunStockTx(fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= s.config.Inventory.TxMaxRetries; attempt++ {
		err = s.db.Transaction(fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		s.logger.WithError(err).WithField("attempt", attempt).Warn("Stock transaction aborted, retrying")
	}
	return shared.Wrap(shared.ErrConcurrencyConflict,
		"stock transaction failed after %d attempts: %v", s.config.Inventory.TxMaxRetries, err)
}

// isRetryableTxError matches database errors that abort a transaction
// without invalidating the operation itself
func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "database is locked")
}

// lockWarehouse loads the warehouse row under SELECT ... FOR UPDATE,
// serializing stock mutations per warehouse
func (s *Service) lockWarehouse(tx *gorm.DB, id uint) (*Warehouse, error) {
	var wh Warehouse
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&wh).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "warehouse %d not found", id)
		}
		return nil, fmt.Errorf("failed to lock warehouse: %w", err)
	}
	return &wh, nil
}

// variantScope narrows a stock line query to one variant, treating
// nil as "the line without a variant" rather than "any line"
func variantScope(db *gorm.DB, variantID *uint) *gorm.DB {
	if variantID == nil {
		return db.Where("variant_id IS NULL")
	}
	return db.Where("variant_id = ?", *variantID)
}

// findLine loads the stock line for (warehouse, product, variant)
func (s *Service) findLine(tx *gorm.DB, warehouseID, productID uint, variantID *uint) (*StockLine, error) {
	var line StockLine
	query := tx.Where("warehouse_id = ? AND product_id = ?", warehouseID, productID)
	query = variantScope(query, variantID)
	if err := query.First(&line).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load stock line: %w", err)
	}
	return &line, nil
}

// totalQuantity sums on-hand quantity across all lines of a warehouse
func (s *Service) totalQuantity(tx *gorm.DB, warehouseID uint) (int, error) {
	var total int64
	err := tx.Model(&StockLine{}).
		Where("warehouse_id = ?", warehouseID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum warehouse quantity: %w", err)
	}
	return int(total), nil
}

// RecordMovement appends to the movement log after the stock mutation
// has committed. The ledger is the source of truth, so a failed
// movement write is reported as a data quality problem and never
// undoes the mutation.
func (s *Service) RecordMovement(m *StockMovement) {
	if m == nil {
		return
	}
	if err := s.db.Create(m).Error; err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"warehouse_id":   m.WarehouseID,
			"product_id":     m.ProductID,
			"movement_type":  m.MovementType,
			"reference_type": m.ReferenceType,
			"reference_id":   m.ReferenceID,
		}).Warn("Failed to record stock movement, ledger and log have diverged")
	}
}

// RecordMovements appends several movement log entries
func (s *Service) RecordMovements(movements []*StockMovement) {
	for _, m := range movements {
		s.RecordMovement(m)
	}
}

// AddStockRequest represents an inbound stock mutation
type AddStockRequest struct {
	WarehouseID   uint   `json:"warehouse_id" binding:"required"`
	ProductID     uint   `json:"product_id" binding:"required"`
	VariantID     *uint  `json:"variant_id"`
	Quantity      int    `json:"quantity" binding:"required"`
	ReferenceType string   `json:"reference_type"`
	ReferenceID   uint     `json:"reference_id"`
	Tags          []string `json:"tags"`
	Notes         string   `json:"notes"`
	CreatedBy     uint     `json:"-"`
}

// AddStockTx increases on-hand quantity inside the caller's
// transaction, creating the stock line on first receipt. Request tags
// are merged into the line, duplicates ignored. The warehouse
// capacity is enforced here. The returned movement must be recorded
// by the caller after commit.
func (s *Service) AddStockTx(tx *gorm.DB, req *AddStockRequest) (*StockLine, *StockMovement, error) {
	if req.Quantity <= 0 {
		return nil, nil, shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", req.Quantity)
	}

	wh, err := s.lockWarehouse(tx, req.WarehouseID)
	if err != nil {
		return nil, nil, err
	}

	total, err := s.totalQuantity(tx, req.WarehouseID)
	if err != nil {
		return nil, nil, err
	}
	if !wh.HasCapacityFor(total, req.Quantity) {
		return nil, nil, shared.Wrap(shared.ErrCapacityExceeded,
			"warehouse %s: adding %d exceeds capacity %d (currently %d)", wh.Code, req.Quantity, wh.Capacity, total)
	}

	line, err := s.findLine(tx, req.WarehouseID, req.ProductID, req.VariantID)
	if err == gorm.ErrRecordNotFound {
		line = &StockLine{
			WarehouseID: req.WarehouseID,
			ProductID:   req.ProductID,
			VariantID:   req.VariantID,
		}
		if err := tx.Create(line).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create stock line: %w", err)
		}
	} else if err != nil {
		return nil, nil, err
	}

	refType := req.ReferenceType
	if refType == "" {
		refType = ReferenceTypeAdjustment
	}

	prev := line.Quantity
	line.Quantity += req.Quantity
	for _, tag := range req.Tags {
		line.AddTag(tag)
	}
	if err := tx.Save(line).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to update stock line: %w", err)
	}

	movement := &StockMovement{
		WarehouseID:      req.WarehouseID,
		ProductID:        req.ProductID,
		VariantID:        req.VariantID,
		MovementType:     MovementTypeIn,
		Quantity:         req.Quantity,
		PreviousQuantity: prev,
		NewQuantity:      line.Quantity,
		ReferenceType:    refType,
		ReferenceID:      req.ReferenceID,
		Notes:            req.Notes,
		CreatedBy:        req.CreatedBy,
	}
	return line, movement, nil
}

// AddStock increases on-hand quantity as a standalone operation
func (s *Service) AddStock(req *AddStockRequest) (*StockLine, error) {
	var line *StockLine
	var movement *StockMovement

	err := s.RunStockTx(func(tx *gorm.DB) error {
		var err error
		line, movement, err = s.AddStockTx(tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.RecordMovement(movement)
	return line, nil
}

// RemoveStockRequest represents an outbound adjustment
type RemoveStockRequest struct {
	WarehouseID uint   `json:"warehouse_id" binding:"required"`
	ProductID   uint   `json:"product_id" binding:"required"`
	VariantID   *uint  `json:"variant_id"`
	Quantity    int    `json:"quantity" binding:"required"`
	Notes       string `json:"notes"`
	CreatedBy   uint   `json:"-"`
}

// RemoveStock decreases on-hand quantity for corrections such as
// damage or shrinkage. Reserved stock cannot be removed.
func (s *Service) RemoveStock(req *RemoveStockRequest) (*StockLine, error) {
	if req.Quantity <= 0 {
		return nil, shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", req.Quantity)
	}

	var line *StockLine
	var prev int

	err := s.RunStockTx(func(tx *gorm.DB) error {
		if _, err := s.lockWarehouse(tx, req.WarehouseID); err != nil {
			return err
		}

		var err error
		line, err = s.findLine(tx, req.WarehouseID, req.ProductID, req.VariantID)
		if err == gorm.ErrRecordNotFound {
			return shared.Wrap(shared.ErrInsufficientStock,
				"product %d: required %d, available 0", req.ProductID, req.Quantity)
		} else if err != nil {
			return err
		}

		if line.Available() < req.Quantity {
			return shared.Wrap(shared.ErrInsufficientStock,
				"product %d: required %d, available %d", req.ProductID, req.Quantity, line.Available())
		}

		prev = line.Quantity
		line.Quantity -= req.Quantity
		if err := tx.Save(line).Error; err != nil {
			return fmt.Errorf("failed to update stock line: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.RecordMovement(&StockMovement{
		WarehouseID:      req.WarehouseID,
		ProductID:        req.ProductID,
		VariantID:        req.VariantID,
		MovementType:     MovementTypeOut,
		Quantity:         req.Quantity,
		PreviousQuantity: prev,
		NewQuantity:      line.Quantity,
		ReferenceType:    ReferenceTypeAdjustment,
		Notes:            req.Notes,
		CreatedBy:        req.CreatedBy,
	})

	return line, nil
}

// ReserveStockTx places a hold on available stock without moving it.
// Reservations do not appear in the movement log, the outbound
// movement is recorded when the delivery commits.
func (s *Service) ReserveStockTx(tx *gorm.DB, warehouseID, productID uint, variantID *uint, quantity int) error {
	if quantity <= 0 {
		return shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", quantity)
	}

	if _, err := s.lockWarehouse(tx, warehouseID); err != nil {
		return err
	}

	line, err := s.findLine(tx, warehouseID, productID, variantID)
	if err == gorm.ErrRecordNotFound {
		return shared.Wrap(shared.ErrInsufficientStock,
			"product %d: required %d, available 0", productID, quantity)
	} else if err != nil {
		return err
	}

	if line.Available() < quantity {
		return shared.Wrap(shared.ErrInsufficientStock,
			"product %d: required %d, available %d", productID, quantity, line.Available())
	}

	line.ReservedQuantity += quantity
	if err := tx.Save(line).Error; err != nil {
		return fmt.Errorf("failed to update stock line: %w", err)
	}
	return nil
}

// ReserveStock places a hold as a standalone operation
func (s *Service) ReserveStock(warehouseID, productID uint, variantID *uint, quantity int) error {
	return s.RunStockTx(func(tx *gorm.DB) error {
		return s.ReserveStockTx(tx, warehouseID, productID, variantID, quantity)
	})
}

// ReleaseReservationTx returns held stock to the available pool
func (s *Service) ReleaseReservationTx(tx *gorm.DB, warehouseID, productID uint, variantID *uint, quantity int) error {
	if quantity <= 0 {
		return shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", quantity)
	}

	if _, err := s.lockWarehouse(tx, warehouseID); err != nil {
		return err
	}

	line, err := s.findLine(tx, warehouseID, productID, variantID)
	if err == gorm.ErrRecordNotFound {
		return shared.Wrap(shared.ErrNotFound, "no stock line for product %d in warehouse %d", productID, warehouseID)
	} else if err != nil {
		return err
	}

	if line.ReservedQuantity < quantity {
		return shared.Wrap(shared.ErrInsufficientStock,
			"product %d: release of %d exceeds reserved %d, short %d", productID, quantity, line.ReservedQuantity, quantity-line.ReservedQuantity)
	}

	line.ReservedQuantity -= quantity
	if err := tx.Save(line).Error; err != nil {
		return fmt.Errorf("failed to update stock line: %w", err)
	}
	return nil
}

// ReleaseReservation returns held stock as a standalone operation
func (s *Service) ReleaseReservation(warehouseID, productID uint, variantID *uint, quantity int) error {
	return s.RunStockTx(func(tx *gorm.DB) error {
		return s.ReleaseReservationTx(tx, warehouseID, productID, variantID, quantity)
	})
}

// DeliveryRequest represents a reserved quantity leaving the warehouse
type DeliveryRequest struct {
	WarehouseID uint
	ProductID   uint
	VariantID   *uint
	Quantity    int
	ReferenceID uint
	Notes       string
	CreatedBy   uint
}

// CommitDeliveryTx converts a reservation into an outbound movement:
// on-hand and reserved both drop, delivered accumulates
func (s *Service) CommitDeliveryTx(tx *gorm.DB, req *DeliveryRequest) (*StockMovement, error) {
	if req.Quantity <= 0 {
		return nil, shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", req.Quantity)
	}

	if _, err := s.lockWarehouse(tx, req.WarehouseID); err != nil {
		return nil, err
	}

	line, err := s.findLine(tx, req.WarehouseID, req.ProductID, req.VariantID)
	if err == gorm.ErrRecordNotFound {
		return nil, shared.Wrap(shared.ErrNotFound, "no stock line for product %d in warehouse %d", req.ProductID, req.WarehouseID)
	} else if err != nil {
		return nil, err
	}

	if line.ReservedQuantity < req.Quantity || line.Quantity < req.Quantity {
		return nil, shared.Wrap(shared.ErrInsufficientStock,
			"product %d: delivery of %d exceeds reserved %d, short %d", req.ProductID, req.Quantity, line.ReservedQuantity, req.Quantity-line.ReservedQuantity)
	}

	prev := line.Quantity
	line.Quantity -= req.Quantity
	line.ReservedQuantity -= req.Quantity
	line.DeliveredQuantity += req.Quantity
	if err := tx.Save(line).Error; err != nil {
		return nil, fmt.Errorf("failed to update stock line: %w", err)
	}

	return &StockMovement{
		WarehouseID:      req.WarehouseID,
		ProductID:        req.ProductID,
		VariantID:        req.VariantID,
		MovementType:     MovementTypeOut,
		Quantity:         req.Quantity,
		PreviousQuantity: prev,
		NewQuantity:      line.Quantity,
		ReferenceType:    ReferenceTypeSales,
		ReferenceID:      req.ReferenceID,
		Notes:            req.Notes,
		CreatedBy:        req.CreatedBy,
	}, nil
}

// CommitDelivery converts a reservation as a standalone operation
func (s *Service) CommitDelivery(req *DeliveryRequest) error {
	var movement *StockMovement
	err := s.RunStockTx(func(tx *gorm.DB) error {
		var err error
		movement, err = s.CommitDeliveryTx(tx, req)
		return err
	})
	if err != nil {
		return err
	}
	s.RecordMovement(movement)
	return nil
}

// MarkExpectedReturnTx records that quantity units are expected back
func (s *Service) MarkExpectedReturnTx(tx *gorm.DB, warehouseID, productID uint, variantID *uint, quantity int) error {
	if quantity <= 0 {
		return shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", quantity)
	}

	if _, err := s.lockWarehouse(tx, warehouseID); err != nil {
		return err
	}

	line, err := s.findLine(tx, warehouseID, productID, variantID)
	if err == gorm.ErrRecordNotFound {
		return shared.Wrap(shared.ErrNotFound, "no stock line for product %d in warehouse %d", productID, warehouseID)
	} else if err != nil {
		return err
	}

	line.ExpectedReturns += quantity
	if err := tx.Save(line).Error; err != nil {
		return fmt.Errorf("failed to update stock line: %w", err)
	}
	return nil
}

// MarkExpectedReturn records an expected return as a standalone operation
func (s *Service) MarkExpectedReturn(warehouseID, productID uint, variantID *uint, quantity int) error {
	return s.RunStockTx(func(tx *gorm.DB) error {
		return s.MarkExpectedReturnTx(tx, warehouseID, productID, variantID, quantity)
	})
}

// CancelExpectedReturnTx drops an expected return that will not
// arrive. The counter never goes below zero, historical data contains
// flags that were recorded before the counter existed.
func (s *Service) CancelExpectedReturnTx(tx *gorm.DB, warehouseID, productID uint, variantID *uint, quantity int) error {
	if quantity <= 0 {
		return shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", quantity)
	}

	if _, err := s.lockWarehouse(tx, warehouseID); err != nil {
		return err
	}

	line, err := s.findLine(tx, warehouseID, productID, variantID)
	if err == gorm.ErrRecordNotFound {
		return nil
	} else if err != nil {
		return err
	}

	line.ExpectedReturns -= quantity
	if line.ExpectedReturns < 0 {
		line.ExpectedReturns = 0
	}
	if err := tx.Save(line).Error; err != nil {
		return fmt.Errorf("failed to update stock line: %w", err)
	}
	return nil
}

// CancelExpectedReturn drops an expected return as a standalone operation
func (s *Service) CancelExpectedReturn(warehouseID, productID uint, variantID *uint, quantity int) error {
	return s.RunStockTx(func(tx *gorm.DB) error {
		return s.CancelExpectedReturnTx(tx, warehouseID, productID, variantID, quantity)
	})
}

// ReturnReceiptRequest represents returned goods arriving back
type ReturnReceiptRequest struct {
	WarehouseID uint
	ProductID   uint
	VariantID   *uint
	Quantity    int
	Condition   string
	ReferenceID uint
	Notes       string
	CreatedBy   uint
}

// ReceiveReturnTx books returned units back into stock: expected
// returns drop, on-hand and returned counters rise, and the line is
// tagged with the return condition. A missing line is created so
// returns to a warehouse that never stocked the product still land.
func (s *Service) ReceiveReturnTx(tx *gorm.DB, req *ReturnReceiptRequest) (*StockLine, *StockMovement, error) {
	if req.Quantity <= 0 {
		return nil, nil, shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", req.Quantity)
	}

	if _, err := s.lockWarehouse(tx, req.WarehouseID); err != nil {
		return nil, nil, err
	}

	line, err := s.findLine(tx, req.WarehouseID, req.ProductID, req.VariantID)
	if err == gorm.ErrRecordNotFound {
		line = &StockLine{
			WarehouseID: req.WarehouseID,
			ProductID:   req.ProductID,
			VariantID:   req.VariantID,
		}
		if err := tx.Create(line).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create stock line: %w", err)
		}
	} else if err != nil {
		return nil, nil, err
	}

	prev := line.Quantity
	line.ExpectedReturns -= req.Quantity
	if line.ExpectedReturns < 0 {
		line.ExpectedReturns = 0
	}
	line.Quantity += req.Quantity
	line.ReturnedQuantity += req.Quantity
	line.AddTag("returned")
	if req.Condition != "" && !strings.EqualFold(req.Condition, "good") {
		line.AddTag(req.Condition)
	}
	if err := tx.Save(line).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to update stock line: %w", err)
	}

	movement := &StockMovement{
		WarehouseID:      req.WarehouseID,
		ProductID:        req.ProductID,
		VariantID:        req.VariantID,
		MovementType:     MovementTypeIn,
		Quantity:         req.Quantity,
		PreviousQuantity: prev,
		NewQuantity:      line.Quantity,
		ReferenceType:    ReferenceTypeReturn,
		ReferenceID:      req.ReferenceID,
		Notes:            req.Notes,
		CreatedBy:        req.CreatedBy,
	}
	return line, movement, nil
}

// ReceiveReturn books returned units as a standalone operation
func (s *Service) ReceiveReturn(req *ReturnReceiptRequest) (*StockLine, error) {
	var line *StockLine
	var movement *StockMovement

	err := s.RunStockTx(func(tx *gorm.DB) error {
		var err error
		line, movement, err = s.ReceiveReturnTx(tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.RecordMovement(movement)
	return line, nil
}
