// internal/domain/purchase/service.go
package purchase

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

// Service handles purchase order business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
	stock  *warehouse.Service
	logger *logrus.Logger
}

// NewService creates a new purchase service
func NewService(db *gorm.DB, stock *warehouse.Service, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		db:     db,
		config: cfg,
		stock:  stock,
		logger: logger,
	}
}

// SupplierCreateRequest represents supplier creation data
type SupplierCreateRequest struct {
	Code    string `json:"code" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// CreateSupplier creates a new supplier
func (s *Service) CreateSupplier(req *SupplierCreateRequest) (*Supplier, error) {
	var existing Supplier
	if result := s.db.Where("code = ?", req.Code).First(&existing); result.Error == nil {
		return nil, shared.Wrap(shared.ErrAlreadyExists, "supplier with code %s already exists", req.Code)
	}

	supplier := Supplier{
		Code:     req.Code,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		IsActive: true,
	}
	if err := s.db.Create(&supplier).Error; err != nil {
		return nil, fmt.Errorf("failed to create supplier: %w", err)
	}
	return &supplier, nil
}

// GetSuppliers retrieves all active suppliers
func (s *Service) GetSuppliers() ([]Supplier, error) {
	var suppliers []Supplier
	if err := s.db.Where("is_active = ?", true).Order("name ASC").Find(&suppliers).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve suppliers: %w", err)
	}
	return suppliers, nil
}

// GetSupplier retrieves a single supplier by ID
func (s *Service) GetSupplier(id uint) (*Supplier, error) {
	var supplier Supplier
	if err := s.db.Where("id = ?", id).First(&supplier).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "supplier %d not found", id)
		}
		return nil, fmt.Errorf("failed to retrieve supplier: %w", err)
	}
	return &supplier, nil
}

// PurchaseItemRequest represents one requested purchase line
type PurchaseItemRequest struct {
	ProductID uint  `json:"product_id" binding:"required"`
	VariantID *uint `json:"variant_id"`
	Quantity  int   `json:"quantity" binding:"required"`
	UnitCost  int64 `json:"unit_cost" binding:"required"`
}

// PurchaseCreateRequest represents purchase order creation data
type PurchaseCreateRequest struct {
	SupplierID  uint                  `json:"supplier_id" binding:"required"`
	WarehouseID uint                  `json:"warehouse_id" binding:"required"`
	Notes       string                `json:"notes"`
	Items       []PurchaseItemRequest `json:"items" binding:"required"`
}

// CreatePurchase creates a pending purchase order. No stock moves
// until the purchase is confirmed.
func (s *Service) CreatePurchase(userID uint, req *PurchaseCreateRequest) (*Purchase, error) {
	if len(req.Items) == 0 {
		return nil, shared.Wrap(shared.ErrInvalidInput, "purchase requires at least one item")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, shared.Wrap(shared.ErrInvalidInput, "product %d: quantity must be positive", item.ProductID)
		}
	}

	if _, err := s.GetSupplier(req.SupplierID); err != nil {
		return nil, err
	}
	var wh warehouse.Warehouse
	if err := s.db.Where("id = ?", req.WarehouseID).First(&wh).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "warehouse %d not found", req.WarehouseID)
		}
		return nil, fmt.Errorf("failed to load warehouse: %w", err)
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
		total += item.UnitCost * int64(item.Quantity)
	}

	purchase := Purchase{
		SupplierID:    req.SupplierID,
		WarehouseID:   req.WarehouseID,
		Status:        PurchaseStatusPending,
		PaymentStatus: PaymentStatusUnpaid,
		TotalAmount:   total,
		Notes:         req.Notes,
		CreatedBy:     userID,
	}
	if err := tx.Create(&purchase).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}

	purchase.PurchaseNumber = s.generatePurchaseNumber(purchase.ID)
	if err := tx.Model(&purchase).Update("purchase_number", purchase.PurchaseNumber).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update purchase number: %w", err)
	}

	for _, item := range req.Items {
		purchaseItem := PurchaseItem{
			PurchaseID: purchase.ID,
			ProductID:  item.ProductID,
			VariantID:  item.VariantID,
			Quantity:   item.Quantity,
			UnitCost:   item.UnitCost,
			TotalCost:  item.UnitCost * int64(item.Quantity),
		}
		if err := tx.Create(&purchaseItem).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create purchase item: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit purchase transaction: %w", err)
	}

	if err := s.db.Preload("Items").Preload("Supplier").First(&purchase, purchase.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load complete purchase: %w", err)
	}

	return &purchase, nil
}

// PurchaseListRequest represents purchase list query parameters
type PurchaseListRequest struct {
	Page        int    `form:"page,default=1"`
	Limit       int    `form:"limit,default=20"`
	Status      string `form:"status"`
	SupplierID  uint   `form:"supplier_id"`
	WarehouseID uint   `form:"warehouse_id"`
}

// PurchaseListResponse represents purchases with pagination
type PurchaseListResponse struct {
	Purchases  []Purchase           `json:"purchases"`
	Pagination warehouse.Pagination `json:"pagination"`
}

// GetPurchases retrieves purchase orders with filtering and pagination
func (s *Service) GetPurchases(req *PurchaseListRequest) (*PurchaseListResponse, error) {
	var purchases []Purchase
	var total int64

	query := s.db.Model(&Purchase{}).Preload("Supplier").Preload("Items")

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.SupplierID > 0 {
		query = query.Where("supplier_id = ?", req.SupplierID)
	}
	if req.WarehouseID > 0 {
		query = query.Where("warehouse_id = ?", req.WarehouseID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.Order("id DESC").Offset(offset).Limit(req.Limit).Find(&purchases).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve purchases: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &PurchaseListResponse{
		Purchases: purchases,
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

// GetPurchase retrieves a single purchase with items and receipts
func (s *Service) GetPurchase(id uint) (*Purchase, error) {
	var purchase Purchase
	err := s.db.
		Preload("Supplier").
		Preload("Items").
		Preload("Receipts").
		Where("id = ?", id).
		First(&purchase).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "purchase %d not found", id)
		}
		return nil, fmt.Errorf("failed to retrieve purchase: %w", err)
	}
	return &purchase, nil
}

// ConfirmPurchase allocates every purchased item into the target
// warehouse and flips the purchase to confirmed. Allocation is all or
// nothing: one item failing the capacity check leaves no stock
// changed and the purchase pending. A second confirm never
// double-allocates, the caller gets told the purchase is already done.
func (s *Service) ConfirmPurchase(id, userID uint) (*Purchase, error) {
	var purchase Purchase
	var movements []*warehouse.StockMovement

	err := s.stock.RunStockTx(func(tx *gorm.DB) error {
		movements = movements[:0]

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			Where("id = ?", id).
			First(&purchase).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "purchase %d not found", id)
			}
			return fmt.Errorf("failed to load purchase: %w", err)
		}

		if purchase.Status == PurchaseStatusConfirmed {
			return shared.Wrap(shared.ErrAlreadyProcessed,
				"purchase %s is already confirmed", purchase.PurchaseNumber)
		}
		if !purchase.CanBeConfirmed() {
			return shared.Wrap(shared.ErrInvalidTransition,
				"purchase %s cannot be confirmed from status %s", purchase.PurchaseNumber, purchase.Status)
		}

		for _, item := range purchase.Items {
			_, movement, err := s.stock.AddStockTx(tx, &warehouse.AddStockRequest{
				WarehouseID:   purchase.WarehouseID,
				ProductID:     item.ProductID,
				VariantID:     item.VariantID,
				Quantity:      item.Quantity,
				ReferenceType: warehouse.ReferenceTypePurchase,
				ReferenceID:   purchase.ID,
				Notes:         purchase.PurchaseNumber,
				CreatedBy:     userID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
		}

		now := time.Now().UTC()
		purchase.Status = PurchaseStatusConfirmed
		purchase.ConfirmedAt = &now
		if err := tx.Model(&purchase).Updates(map[string]interface{}{
			"status":       PurchaseStatusConfirmed,
			"confirmed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update purchase status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.stock.RecordMovements(movements)

	s.logger.WithFields(logrus.Fields{
		"purchase":  purchase.PurchaseNumber,
		"warehouse": purchase.WarehouseID,
		"items":     len(purchase.Items),
	}).Info("Purchase confirmed and stock allocated")

	return &purchase, nil
}

// CancelPurchase cancels a pending purchase order
func (s *Service) CancelPurchase(id, userID uint) (*Purchase, error) {
	var purchase Purchase
	if err := s.db.Where("id = ?", id).First(&purchase).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "purchase %d not found", id)
		}
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}

	if purchase.Status == PurchaseStatusCancelled {
		return &purchase, nil
	}
	if !purchase.CanBeCancelled() {
		return nil, shared.Wrap(shared.ErrInvalidTransition,
			"purchase %s cannot be cancelled from status %s", purchase.PurchaseNumber, purchase.Status)
	}

	if err := s.db.Model(&purchase).Update("status", PurchaseStatusCancelled).Error; err != nil {
		return nil, fmt.Errorf("failed to cancel purchase: %w", err)
	}
	purchase.Status = PurchaseStatusCancelled
	return &purchase, nil
}

// MarkPaidRequest represents supplier payment data
type MarkPaidRequest struct {
	Method string `json:"method"`
	Notes  string `json:"notes"`
}

// MarkPaid clears the supplier payment and issues a payment receipt.
// Marking an already paid purchase returns the existing receipt
// instead of issuing a second one.
func (s *Service) MarkPaid(id, userID uint, req *MarkPaidRequest) (*PaymentReceipt, error) {
	var receipt PaymentReceipt

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var purchase Purchase
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&purchase).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "purchase %d not found", id)
			}
			return fmt.Errorf("failed to load purchase: %w", err)
		}

		if purchase.Status == PurchaseStatusCancelled {
			return shared.Wrap(shared.ErrInvalidTransition,
				"purchase %s is cancelled, nothing to pay", purchase.PurchaseNumber)
		}

		if purchase.IsPaid() {
			if err := tx.Where("purchase_id = ?", purchase.ID).Order("id ASC").First(&receipt).Error; err != nil {
				return fmt.Errorf("failed to load existing receipt: %w", err)
			}
			return nil
		}

		receipt = PaymentReceipt{
			PurchaseID: purchase.ID,
			Amount:     purchase.TotalAmount,
			Method:     req.Method,
			Notes:      req.Notes,
			CreatedBy:  userID,
		}
		if err := tx.Create(&receipt).Error; err != nil {
			return fmt.Errorf("failed to create payment receipt: %w", err)
		}

		receipt.ReceiptNumber = s.generateReceiptNumber(receipt.ID)
		if err := tx.Model(&receipt).Update("receipt_number", receipt.ReceiptNumber).Error; err != nil {
			return fmt.Errorf("failed to update receipt number: %w", err)
		}

		now := time.Now().UTC()
		if err := tx.Model(&purchase).Updates(map[string]interface{}{
			"payment_status": PaymentStatusPaid,
			"paid_at":        now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &receipt, nil
}

// generatePurchaseNumber generates a unique purchase number
func (s *Service) generatePurchaseNumber(purchaseID uint) string {
	// Format: PUR-YYYYMMDD-XXXXX
	return fmt.Sprintf("PUR-%s-%05d", time.Now().Format("20060102"), purchaseID)
}

// generateReceiptNumber generates a unique receipt number
func (s *Service) generateReceiptNumber(receiptID uint) string {
	// Format: RCT-YYYYMMDD-XXXXX
	return fmt.Sprintf("RCT-%s-%05d", time.Now().Format("20060102"), receiptID)
}
