// internal/domain/sales/service.go
package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/returns"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"github.com/your-org/inventory-backend/internal/domain/warehouse"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles sales order business logic
type Service struct {
	db      *gorm.DB
	config  *config.Config
	stock   *warehouse.Service
	returns *returns.Service
	logger  *logrus.Logger
}

// NewService creates a new sales service
func NewService(db *gorm.DB, stock *warehouse.Service, rets *returns.Service, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		db:      db,
		config:  cfg,
		stock:   stock,
		returns: rets,
		logger:  logger,
	}
}

// OrderItemRequest represents one requested order line
type OrderItemRequest struct {
	ProductID uint  `json:"product_id" binding:"required"`
	VariantID *uint `json:"variant_id"`
	Quantity  int   `json:"quantity" binding:"required"`
	UnitPrice int64 `json:"unit_price" binding:"required"`
}

// CreateOrderRequest represents sales order creation data
type CreateOrderRequest struct {
	WarehouseID     uint               `json:"warehouse_id" binding:"required"`
	CustomerName    string             `json:"customer_name" binding:"required"`
	CustomerEmail   string             `json:"customer_email"`
	CustomerPhone   string             `json:"customer_phone"`
	ShippingAddress string             `json:"shipping_address"`
	Notes           string             `json:"notes"`
	Items           []OrderItemRequest `json:"items" binding:"required"`
}

// CreateOrder creates a pending sales order. Availability is checked
// per line, aggregated over repeated lines of the same product, but
// nothing is reserved until dispatch.
func (s *Service) CreateOrder(userID uint, req *CreateOrderRequest) (*SalesOrder, error) {
	if len(req.Items) == 0 {
		return nil, shared.Wrap(shared.ErrInvalidInput, "order requires at least one item")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, shared.Wrap(shared.ErrInvalidInput, "product %d: quantity must be positive", item.ProductID)
		}
	}

	var wh warehouse.Warehouse
	if err := s.db.Where("id = ?", req.WarehouseID).First(&wh).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "warehouse %d not found", req.WarehouseID)
		}
		return nil, fmt.Errorf("failed to load warehouse: %w", err)
	}

	if err := s.checkAvailability(req.WarehouseID, req.Items); err != nil {
		return nil, err
	}

	// Start transaction
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var total int64
	for _, item := range req.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}

	order := SalesOrder{
		WarehouseID:     req.WarehouseID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Status:          OrderStatusPending,
		TotalAmount:     total,
		Notes:           req.Notes,
		CreatedBy:       userID,
	}
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	order.OrderNumber = s.generateOrderNumber(order.ID)
	if err := tx.Model(&order).Update("order_number", order.OrderNumber).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update order number: %w", err)
	}

	for _, item := range req.Items {
		orderItem := SalesOrderItem{
			OrderID:    order.ID,
			ProductID:  item.ProductID,
			VariantID:  item.VariantID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.UnitPrice * int64(item.Quantity),
		}
		if err := tx.Create(&orderItem).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	order.AddStatusHistory(OrderStatusPending, "Order created", userID)
	for _, history := range order.StatusHistory {
		if err := tx.Create(&history).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create status history: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit order transaction: %w", err)
	}

	if err := s.db.Preload("Items").Preload("StatusHistory").First(&order, order.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load complete order: %w", err)
	}

	return &order, nil
}

// checkAvailability verifies the warehouse can cover the requested
// quantities, summing lines that hit the same (product, variant)
func (s *Service) checkAvailability(warehouseID uint, items []OrderItemRequest) error {
	type lineKey struct {
		productID  uint
		variantID  uint
		hasVariant bool
	}

	requested := make(map[lineKey]int)
	variants := make(map[lineKey]*uint)
	for _, item := range items {
		key := lineKey{productID: item.ProductID}
		if item.VariantID != nil {
			key.variantID = *item.VariantID
			key.hasVariant = true
		}
		requested[key] += item.Quantity
		variants[key] = item.VariantID
	}

	for key, quantity := range requested {
		available, err := s.stock.GetAvailable(warehouseID, key.productID, variants[key])
		if err != nil {
			return err
		}
		if available < quantity {
			return shared.Wrap(shared.ErrInsufficientStock,
				"product %d: required %d, available %d", key.productID, quantity, available)
		}
	}
	return nil
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page        int    `form:"page,default=1"`
	Limit       int    `form:"limit,default=20"`
	Status      string `form:"status"`
	WarehouseID uint   `form:"warehouse_id"`
	Search      string `form:"search"`
}

// OrderListResponse represents orders with pagination
type OrderListResponse struct {
	Orders     []SalesOrder         `json:"orders"`
	Pagination warehouse.Pagination `json:"pagination"`
}

// GetOrders retrieves sales orders with filtering and pagination
func (s *Service) GetOrders(req *OrderListRequest) (*OrderListResponse, error) {
	var orders []SalesOrder
	var total int64

	query := s.db.Model(&SalesOrder{}).Preload("Items")

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.WarehouseID > 0 {
		query = query.Where("warehouse_id = ?", req.WarehouseID)
	}
	if req.Search != "" {
		search := "%" + strings.ToLower(req.Search) + "%"
		query = query.Where("LOWER(customer_name) LIKE ? OR LOWER(order_number) LIKE ?", search, search)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.Order("id DESC").Offset(offset).Limit(req.Limit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &OrderListResponse{
		Orders: orders,
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

// GetOrder retrieves a single order with items, shipments and history
func (s *Service) GetOrder(id uint) (*SalesOrder, error) {
	var order SalesOrder
	err := s.db.
		Preload("Items").
		Preload("Shipments").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "order %d not found", id)
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &order, nil
}

// TransitionRequest carries the optional data a status change needs
type TransitionRequest struct {
	Comment        string `json:"comment"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

// Transition moves an order through its lifecycle. Every status
// change goes through this single gate so the legality rules live in
// one place. Returns are flagged through FlagReturn, which applies
// the same rules before recording what is coming back.
func (s *Service) Transition(id uint, to OrderStatus, userID uint, req *TransitionRequest) (*SalesOrder, error) {
	if req == nil {
		req = &TransitionRequest{}
	}

	switch to {
	case OrderStatusExpectedReturn:
		return nil, shared.Wrap(shared.ErrInvalidInput, "flag returns through the return endpoints")
	case OrderStatusReturned:
		return nil, shared.Wrap(shared.ErrInvalidInput, "orders become returned when all expected returns are received")
	}

	var order SalesOrder
	var movements []*warehouse.StockMovement

	err := s.stock.RunStockTx(func(tx *gorm.DB) error {
		movements = movements[:0]

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			Where("id = ?", id).
			First(&order).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "order %d not found", id)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if order.Status == to {
			return nil
		}
		if !isValidStatusTransition(order.Status, to) {
			return shared.Wrap(shared.ErrInvalidTransition,
				"order %s cannot move from %s to %s", order.OrderNumber, order.Status, to)
		}

		updates := map[string]interface{}{"status": to}
		now := time.Now().UTC()

		switch to {
		case OrderStatusDispatched:
			// Reserve every line. One failing line rolls the whole
			// dispatch back, no partial holds survive.
			for _, item := range order.Items {
				if err := s.stock.ReserveStockTx(tx, order.WarehouseID, item.ProductID, item.VariantID, item.Quantity); err != nil {
					return err
				}
			}

			shipment := Shipment{
				OrderID:        order.ID,
				WarehouseID:    order.WarehouseID,
				Status:         ShipmentStatusInTransit,
				Carrier:        req.Carrier,
				TrackingNumber: req.TrackingNumber,
				DispatchedAt:   now,
			}
			if err := tx.Create(&shipment).Error; err != nil {
				return fmt.Errorf("failed to create shipment: %w", err)
			}
			shipment.ShipmentNumber = s.generateShipmentNumber(shipment.ID)
			if err := tx.Model(&shipment).Update("shipment_number", shipment.ShipmentNumber).Error; err != nil {
				return fmt.Errorf("failed to update shipment number: %w", err)
			}
			updates["dispatched_at"] = now

		case OrderStatusDelivered:
			for _, item := range order.Items {
				movement, err := s.stock.CommitDeliveryTx(tx, &warehouse.DeliveryRequest{
					WarehouseID: order.WarehouseID,
					ProductID:   item.ProductID,
					VariantID:   item.VariantID,
					Quantity:    item.Quantity,
					ReferenceID: order.ID,
					Notes:       order.OrderNumber,
					CreatedBy:   userID,
				})
				if err != nil {
					return err
				}
				movements = append(movements, movement)
			}
			if err := tx.Model(&Shipment{}).
				Where("order_id = ? AND status = ?", order.ID, ShipmentStatusInTransit).
				Updates(map[string]interface{}{"status": ShipmentStatusDelivered, "delivered_at": now}).Error; err != nil {
				return fmt.Errorf("failed to update shipments: %w", err)
			}
			updates["delivered_at"] = now

		case OrderStatusCancelled:
			if order.HoldsReservation() {
				for _, item := range order.Items {
					if err := s.stock.ReleaseReservationTx(tx, order.WarehouseID, item.ProductID, item.VariantID, item.Quantity); err != nil {
						return err
					}
				}
				if err := tx.Model(&Shipment{}).
					Where("order_id = ? AND status = ?", order.ID, ShipmentStatusInTransit).
					Update("status", ShipmentStatusCancelled).Error; err != nil {
					return fmt.Errorf("failed to cancel shipments: %w", err)
				}
			}
		}

		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		order.Status = to

		history := OrderStatusHistory{
			OrderID:   order.ID,
			Status:    to,
			Comment:   req.Comment,
			CreatedBy: userID,
			CreatedAt: now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.stock.RecordMovements(movements)

	return &order, nil
}

// FlagReturnItem represents one order line being flagged for return
type FlagReturnItem struct {
	ProductID uint  `json:"product_id" binding:"required"`
	VariantID *uint `json:"variant_id"`
	Quantity  int   `json:"quantity" binding:"required"`
}

// FlagReturnRequest represents the items a customer is sending back
type FlagReturnRequest struct {
	Items  []FlagReturnItem `json:"items" binding:"required"`
	Reason string           `json:"reason"`
}

// FlagReturn marks delivered items as coming back: expected return
// records are created, the stock line counters move, and the order
// enters expected_return. A flag can never exceed what was delivered.
func (s *Service) FlagReturn(orderID, userID uint, req *FlagReturnRequest) (*SalesOrder, []returns.ExpectedReturn, error) {
	if len(req.Items) == 0 {
		return nil, nil, shared.Wrap(shared.ErrInvalidInput, "flag requires at least one item")
	}

	var order SalesOrder
	var flagged []returns.ExpectedReturn

	err := s.stock.RunStockTx(func(tx *gorm.DB) error {
		flagged = flagged[:0]

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			Where("id = ?", orderID).
			First(&order).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "order %d not found", orderID)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if order.Status != OrderStatusDelivered && order.Status != OrderStatusExpectedReturn {
			return shared.Wrap(shared.ErrInvalidTransition,
				"order %s cannot flag returns from status %s", order.OrderNumber, order.Status)
		}

		for _, flag := range req.Items {
			item := order.findItem(flag.ProductID, flag.VariantID)
			if item == nil {
				return shared.Wrap(shared.ErrNotFound,
					"order %s has no line for product %d", order.OrderNumber, flag.ProductID)
			}

			alreadyFlagged, err := s.returns.FlaggedQuantity(order.ID, flag.ProductID, flag.VariantID)
			if err != nil {
				return err
			}
			if alreadyFlagged+flag.Quantity > item.Quantity {
				return shared.Wrap(shared.ErrInvalidInput,
					"product %d: flagging %d exceeds delivered %d (already flagged %d)",
					flag.ProductID, flag.Quantity, item.Quantity, alreadyFlagged)
			}

			expected, err := s.returns.CreateExpectedTx(tx, &returns.ExpectedReturnRequest{
				SalesOrderID: order.ID,
				OrderNumber:  order.OrderNumber,
				CustomerName: order.CustomerName,
				WarehouseID:  order.WarehouseID,
				ProductID:    flag.ProductID,
				VariantID:    flag.VariantID,
				Quantity:     flag.Quantity,
				Reason:       req.Reason,
				FlaggedBy:    userID,
			})
			if err != nil {
				return err
			}
			flagged = append(flagged, *expected)

			if err := s.stock.MarkExpectedReturnTx(tx, order.WarehouseID, flag.ProductID, flag.VariantID, flag.Quantity); err != nil {
				return err
			}
		}

		if order.Status != OrderStatusExpectedReturn {
			if err := tx.Model(&order).Update("status", OrderStatusExpectedReturn).Error; err != nil {
				return fmt.Errorf("failed to update order status: %w", err)
			}
			order.Status = OrderStatusExpectedReturn

			history := OrderStatusHistory{
				OrderID:   order.ID,
				Status:    OrderStatusExpectedReturn,
				Comment:   req.Reason,
				CreatedBy: userID,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&history).Error; err != nil {
				return fmt.Errorf("failed to create status history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &order, flagged, nil
}

// MarkOrderReturned closes the return cycle once every expected
// return has arrived. The returns service calls this, a second call
// for an already returned order is a no-op.
func (s *Service) MarkOrderReturned(orderID, userID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var order SalesOrder
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orderID).
			First(&order).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "order %d not found", orderID)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if order.Status == OrderStatusReturned {
			return nil
		}
		if order.Status != OrderStatusExpectedReturn {
			return shared.Wrap(shared.ErrInvalidTransition,
				"order %s cannot move from %s to %s", order.OrderNumber, order.Status, OrderStatusReturned)
		}

		if err := tx.Model(&order).Update("status", OrderStatusReturned).Error; err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		history := OrderStatusHistory{
			OrderID:   order.ID,
			Status:    OrderStatusReturned,
			Comment:   "All expected returns received",
			CreatedBy: userID,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}
		return nil
	})
}

// DeleteOrder soft deletes a terminal order. Orders still moving
// through the lifecycle, and with them any stock they hold, stay.
func (s *Service) DeleteOrder(id uint) error {
	var order SalesOrder
	if err := s.db.Where("id = ?", id).First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return shared.Wrap(shared.ErrNotFound, "order %d not found", id)
		}
		return fmt.Errorf("failed to load order: %w", err)
	}

	if !order.IsTerminal() {
		return shared.Wrap(shared.ErrInvalidInput,
			"order %s is still %s, only returned or cancelled orders can be deleted", order.OrderNumber, order.Status)
	}

	if err := s.db.Delete(&order).Error; err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// findItem locates the order line matching (product, variant)
func (o *SalesOrder) findItem(productID uint, variantID *uint) *SalesOrderItem {
	for i := range o.Items {
		item := &o.Items[i]
		if item.ProductID != productID {
			continue
		}
		if (item.VariantID == nil) != (variantID == nil) {
			continue
		}
		if item.VariantID != nil && *item.VariantID != *variantID {
			continue
		}
		return item
	}
	return nil
}

// isValidStatusTransition enforces the order lifecycle
func isValidStatusTransition(from, to OrderStatus) bool {
	validTransitions := map[OrderStatus][]OrderStatus{
		OrderStatusPending: {
			OrderStatusConfirmed,
			OrderStatusCancelled,
		},
		OrderStatusConfirmed: {
			OrderStatusDispatched,
			OrderStatusCancelled,
		},
		OrderStatusDispatched: {
			OrderStatusDelivered,
			OrderStatusCancelled,
		},
		OrderStatusDelivered: {
			OrderStatusExpectedReturn,
		},
		OrderStatusExpectedReturn: {
			OrderStatusReturned,
		},
		// returned and cancelled are terminal
	}

	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// generateOrderNumber generates a unique order number
func (s *Service) generateOrderNumber(orderID uint) string {
	// Format: SO-YYYYMMDD-XXXXX
	return fmt.Sprintf("SO-%s-%05d", time.Now().Format("20060102"), orderID)
}

// generateShipmentNumber generates a unique shipment number
func (s *Service) generateShipmentNumber(shipmentID uint) string {
	// Format: SHP-YYYYMMDD-XXXXX
	return fmt.Sprintf("SHP-%s-%05d", time.Now().Format("20060102"), shipmentID)
}
