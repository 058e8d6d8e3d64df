// internal/domain/returns/service.go
package returns

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"github.com/your-org/inventory-backend/internal/domain/warehouse"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderCompleter flips a sales order to returned once every expected
// return against it has arrived. The sales service implements it, the
// indirection keeps this package free of a sales dependency.
type OrderCompleter interface {
	MarkOrderReturned(orderID, userID uint) error
}

// Service handles return reconciliation business logic
type Service struct {
	db        *gorm.DB
	config    *config.Config
	stock     *warehouse.Service
	logger    *logrus.Logger
	completer OrderCompleter
}

// NewService creates a new returns service
func NewService(db *gorm.DB, stock *warehouse.Service, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		db:     db,
		config: cfg,
		stock:  stock,
		logger: logger,
	}
}

// SetOrderCompleter wires the sales side in after both services exist
func (s *Service) SetOrderCompleter(c OrderCompleter) {
	s.completer = c
}

// ExpectedReturnRequest represents an expected return being flagged
type ExpectedReturnRequest struct {
	SalesOrderID uint
	OrderNumber  string
	CustomerName string
	WarehouseID  uint
	ProductID    uint
	VariantID    *uint
	Quantity     int
	Reason       string
	FlaggedBy    uint
}

// CreateExpectedTx records an expected return inside the caller's
// transaction. A second open flag for the same order line is rejected
// so one shipment cannot be awaited twice.
func (s *Service) CreateExpectedTx(tx *gorm.DB, req *ExpectedReturnRequest) (*ExpectedReturn, error) {
	if req.Quantity <= 0 {
		return nil, shared.Wrap(shared.ErrInvalidInput, "quantity must be positive, got %d", req.Quantity)
	}

	query := tx.Model(&ExpectedReturn{}).
		Where("sales_order_id = ? AND product_id = ? AND status IN ?", req.SalesOrderID, req.ProductID,
			[]ExpectedReturnStatus{ExpectedReturnStatusPending, ExpectedReturnStatusInTransit})
	if req.VariantID == nil {
		query = query.Where("variant_id IS NULL")
	} else {
		query = query.Where("variant_id = ?", *req.VariantID)
	}
	var open int64
	if err := query.Count(&open).Error; err != nil {
		return nil, fmt.Errorf("failed to check open returns: %w", err)
	}
	if open > 0 {
		return nil, shared.Wrap(shared.ErrAlreadyExists,
			"order %s already has an open expected return for product %d", req.OrderNumber, req.ProductID)
	}

	expected := ExpectedReturn{
		SalesOrderID: req.SalesOrderID,
		OrderNumber:  req.OrderNumber,
		CustomerName: req.CustomerName,
		WarehouseID:  req.WarehouseID,
		ProductID:    req.ProductID,
		VariantID:    req.VariantID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		Status:       ExpectedReturnStatusPending,
		FlaggedBy:    req.FlaggedBy,
	}
	if err := tx.Create(&expected).Error; err != nil {
		return nil, fmt.Errorf("failed to create expected return: %w", err)
	}

	expected.ReturnNumber = s.generateReturnNumber(expected.ID)
	if err := tx.Model(&expected).Update("return_number", expected.ReturnNumber).Error; err != nil {
		return nil, fmt.Errorf("failed to update return number: %w", err)
	}

	return &expected, nil
}

// CreateExpected records an expected return and marks the stock line,
// for flags raised outside the sales state machine
func (s *Service) CreateExpected(req *ExpectedReturnRequest) (*ExpectedReturn, error) {
	var expected *ExpectedReturn
	err := s.stock.RunStockTx(func(tx *gorm.DB) error {
		var err error
		expected, err = s.CreateExpectedTx(tx, req)
		if err != nil {
			return err
		}
		return s.stock.MarkExpectedReturnTx(tx, req.WarehouseID, req.ProductID, req.VariantID, req.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return expected, nil
}

// ExpectedReturnListRequest represents expected return query parameters
type ExpectedReturnListRequest struct {
	Page         int    `form:"page,default=1"`
	Limit        int    `form:"limit,default=20"`
	Status       string `form:"status"`
	SalesOrderID uint   `form:"sales_order_id"`
	WarehouseID  uint   `form:"warehouse_id"`
	ProductID    uint   `form:"product_id"`
}

// ExpectedReturnListResponse represents expected returns with pagination
type ExpectedReturnListResponse struct {
	ExpectedReturns []ExpectedReturn     `json:"expected_returns"`
	Pagination      warehouse.Pagination `json:"pagination"`
}

// GetExpectedReturns retrieves expected returns with filtering
func (s *Service) GetExpectedReturns(req *ExpectedReturnListRequest) (*ExpectedReturnListResponse, error) {
	var records []ExpectedReturn
	var total int64

	query := s.db.Model(&ExpectedReturn{})

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.SalesOrderID > 0 {
		query = query.Where("sales_order_id = ?", req.SalesOrderID)
	}
	if req.WarehouseID > 0 {
		query = query.Where("warehouse_id = ?", req.WarehouseID)
	}
	if req.ProductID > 0 {
		query = query.Where("product_id = ?", req.ProductID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count expected returns: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.Order("id DESC").Offset(offset).Limit(req.Limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve expected returns: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &ExpectedReturnListResponse{
		ExpectedReturns: records,
		Pagination: warehouse.Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// GetExpectedReturn retrieves one expected return with its receipts
func (s *Service) GetExpectedReturn(id uint) (*ExpectedReturn, error) {
	var expected ExpectedReturn
	if err := s.db.Preload("Receipts").Where("id = ?", id).First(&expected).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "expected return %d not found", id)
		}
		return nil, fmt.Errorf("failed to retrieve expected return: %w", err)
	}
	return &expected, nil
}

// ReceiveRequest represents a return arriving at the warehouse
type ReceiveRequest struct {
	Condition   string `json:"condition" binding:"required"`
	WarehouseID uint   `json:"warehouse_id"`
	Notes       string `json:"notes"`
}

// Receive books an awaited return back into stock and closes the
// expected return. The goods land in the warehouse flagged at return
// time unless the request names another one, goods do not always come
// back through the door they left. Receiving a closed return reports
// the duplicate instead of double-counting stock. When the last open
// return of the order arrives, the sales order flips to returned.
func (s *Service) Receive(id, userID uint, req *ReceiveRequest) (*Return, error) {
	var expected ExpectedReturn
	var receipt Return
	var movement *warehouse.StockMovement

	err := s.stock.RunStockTx(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&expected).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "expected return %d not found", id)
			}
			return fmt.Errorf("failed to load expected return: %w", err)
		}

		if expected.Status == ExpectedReturnStatusReceived {
			return shared.Wrap(shared.ErrAlreadyProcessed,
				"return %s has already been received", expected.ReturnNumber)
		}
		if expected.Status == ExpectedReturnStatusCancelled {
			return shared.Wrap(shared.ErrInvalidTransition,
				"return %s is cancelled and cannot be received", expected.ReturnNumber)
		}

		warehouseID := expected.WarehouseID
		if req.WarehouseID != 0 && req.WarehouseID != expected.WarehouseID {
			warehouseID = req.WarehouseID
			// The expectation was flagged against the original
			// warehouse, release it there before landing elsewhere.
			if err := s.stock.CancelExpectedReturnTx(tx, expected.WarehouseID, expected.ProductID, expected.VariantID, expected.Quantity); err != nil {
				return err
			}
		}

		var err error
		_, movement, err = s.stock.ReceiveReturnTx(tx, &warehouse.ReturnReceiptRequest{
			WarehouseID: warehouseID,
			ProductID:   expected.ProductID,
			VariantID:   expected.VariantID,
			Quantity:    expected.Quantity,
			Condition:   req.Condition,
			ReferenceID: expected.SalesOrderID,
			Notes:       expected.ReturnNumber,
			CreatedBy:   userID,
		})
		if err != nil {
			return err
		}

		receipt = Return{
			ExpectedReturnID: expected.ID,
			Quantity:         expected.Quantity,
			Condition:        req.Condition,
			Notes:            req.Notes,
			ReceivedBy:       userID,
		}
		if err := tx.Create(&receipt).Error; err != nil {
			return fmt.Errorf("failed to create return receipt: %w", err)
		}

		now := time.Now().UTC()
		if err := tx.Model(&expected).Updates(map[string]interface{}{
			"status":       ExpectedReturnStatusReceived,
			"warehouse_id": warehouseID,
			"received_at":  now,
		}).Error; err != nil {
			return fmt.Errorf("failed to close expected return: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.stock.RecordMovement(movement)

	if s.completer != nil {
		open, err := s.HasOpenReturns(expected.SalesOrderID)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", expected.SalesOrderID).Warn("Failed to check open returns after receive")
		} else if !open {
			if err := s.completer.MarkOrderReturned(expected.SalesOrderID, userID); err != nil {
				s.logger.WithError(err).WithField("order_id", expected.SalesOrderID).Warn("Failed to mark order returned")
			}
		}
	}

	return &receipt, nil
}

// MarkInTransit notes that the customer has shipped the return.
// Stock counters do not move, the goods are still on the road.
func (s *Service) MarkInTransit(id, userID uint) (*ExpectedReturn, error) {
	var expected ExpectedReturn

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&expected).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "expected return %d not found", id)
			}
			return fmt.Errorf("failed to load expected return: %w", err)
		}

		if expected.Status == ExpectedReturnStatusInTransit {
			return nil
		}
		if expected.Status != ExpectedReturnStatusPending {
			return shared.Wrap(shared.ErrInvalidTransition,
				"return %s cannot move to in_transit from status %s", expected.ReturnNumber, expected.Status)
		}

		if err := tx.Model(&expected).Update("status", ExpectedReturnStatusInTransit).Error; err != nil {
			return fmt.Errorf("failed to update expected return: %w", err)
		}
		expected.Status = ExpectedReturnStatusInTransit
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &expected, nil
}

// CancelExpected drops an expected return that will not arrive and
// releases the expected counter on the stock line
func (s *Service) CancelExpected(id, userID uint) (*ExpectedReturn, error) {
	var expected ExpectedReturn

	err := s.stock.RunStockTx(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&expected).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "expected return %d not found", id)
			}
			return fmt.Errorf("failed to load expected return: %w", err)
		}

		if !expected.IsOpen() {
			return shared.Wrap(shared.ErrInvalidTransition,
				"return %s cannot be cancelled from status %s", expected.ReturnNumber, expected.Status)
		}

		if err := s.stock.CancelExpectedReturnTx(tx, expected.WarehouseID, expected.ProductID, expected.VariantID, expected.Quantity); err != nil {
			return err
		}

		if err := tx.Model(&expected).Update("status", ExpectedReturnStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to cancel expected return: %w", err)
		}
		expected.Status = ExpectedReturnStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &expected, nil
}

// HasOpenReturns reports whether an order still awaits any return
func (s *Service) HasOpenReturns(orderID uint) (bool, error) {
	var open int64
	err := s.db.Model(&ExpectedReturn{}).
		Where("sales_order_id = ? AND status IN ?", orderID,
			[]ExpectedReturnStatus{ExpectedReturnStatusPending, ExpectedReturnStatusInTransit}).
		Count(&open).Error
	if err != nil {
		return false, fmt.Errorf("failed to count open returns: %w", err)
	}
	return open > 0, nil
}

// FlaggedQuantity sums all non-cancelled expected returns for one
// order line, used to cap how much of an item can still be flagged
func (s *Service) FlaggedQuantity(orderID, productID uint, variantID *uint) (int, error) {
	var total int64
	query := s.db.Model(&ExpectedReturn{}).
		Where("sales_order_id = ? AND product_id = ? AND status <> ?", orderID, productID, ExpectedReturnStatusCancelled)
	if variantID == nil {
		query = query.Where("variant_id IS NULL")
	} else {
		query = query.Where("variant_id = ?", *variantID)
	}
	if err := query.Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to sum flagged quantity: %w", err)
	}
	return int(total), nil
}

// PendingProductSummary aggregates awaited returns per product
type PendingProductSummary struct {
	ProductID     uint  `json:"product_id"`
	VariantID     *uint `json:"variant_id,omitempty"`
	TotalQuantity int   `json:"total_quantity"`
	Flags         int   `json:"flags"`
}

// GetPendingSummary aggregates open expected returns per product,
// optionally scoped to one warehouse
func (s *Service) GetPendingSummary(warehouseID uint) ([]PendingProductSummary, error) {
	var rows []PendingProductSummary
	query := s.db.Model(&ExpectedReturn{}).
		Select("product_id, variant_id, SUM(quantity) AS total_quantity, COUNT(*) AS flags").
		Where("status IN ?", []ExpectedReturnStatus{ExpectedReturnStatusPending, ExpectedReturnStatusInTransit}).
		Group("product_id, variant_id").
		Order("total_quantity DESC")
	if warehouseID > 0 {
		query = query.Where("warehouse_id = ?", warehouseID)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate pending returns: %w", err)
	}
	return rows, nil
}

// generateReturnNumber generates a unique return number
func (s *Service) generateReturnNumber(returnID uint) string {
	// Format: RET-YYYYMMDD-XXXXX
	return fmt.Sprintf("RET-%s-%05d", time.Now().Format("20060102"), returnID)
}
