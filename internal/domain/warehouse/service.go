// internal/domain/warehouse/service.go
package warehouse

import (
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// Service handles warehouse and stock ledger business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
	logger *logrus.Logger
	locker *redislock.Client
}

// NewService creates a new warehouse service. redisClient may be nil,
// in which case cross-warehouse transfers skip the distributed lock.
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger *logrus.Logger) *Service {
	s := &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
	if redisClient != nil {
		s.locker = redislock.New(redisClient)
	}
	return s
}

// WarehouseCreateRequest represents warehouse creation data
type WarehouseCreateRequest struct {
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Location  string `json:"location"`
	Capacity  int    `json:"capacity"`
	IsDefault bool   `json:"is_default"`
}

// WarehouseUpdateRequest represents warehouse update data
type WarehouseUpdateRequest struct {
	Name      *string `json:"name"`
	Location  *string `json:"location"`
	Capacity  *int    `json:"capacity"`
	IsActive  *bool   `json:"is_active"`
	IsDefault *bool   `json:"is_default"`
}

// CreateWarehouse creates a new warehouse
func (s *Service) CreateWarehouse(req *WarehouseCreateRequest) (*Warehouse, error) {
	var existing Warehouse
	if result := s.db.Where("code = ?", req.Code).First(&existing); result.Error == nil {
		return nil, shared.Wrap(shared.ErrAlreadyExists, "warehouse with code %s already exists", req.Code)
	}

	if req.Capacity < 0 {
		return nil, shared.Wrap(shared.ErrInvalidInput, "capacity cannot be negative")
	}

	wh := Warehouse{
		Code:      req.Code,
		Name:      req.Name,
		Location:  req.Location,
		Capacity:  req.Capacity,
		IsActive:  true,
		IsDefault: req.IsDefault,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.IsDefault {
			if err := tx.Model(&Warehouse{}).Where("is_default = ?", true).Update("is_default", false).Error; err != nil {
				return fmt.Errorf("failed to clear default warehouse: %w", err)
			}
		}
		if err := tx.Create(&wh).Error; err != nil {
			return fmt.Errorf("failed to create warehouse: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &wh, nil
}

// GetWarehouses retrieves all warehouses
func (s *Service) GetWarehouses(includeInactive bool) ([]Warehouse, error) {
	var warehouses []Warehouse
	query := s.db.Order("is_default DESC, code ASC")
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&warehouses).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve warehouses: %w", err)
	}
	return warehouses, nil
}

// GetWarehouse retrieves a single warehouse with its stock lines
func (s *Service) GetWarehouse(id uint) (*Warehouse, error) {
	var wh Warehouse
	result := s.db.Preload("StockLines").Where("id = ?", id).First(&wh)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "warehouse %d not found", id)
		}
		return nil, fmt.Errorf("failed to retrieve warehouse: %w", result.Error)
	}
	return &wh, nil
}

// UpdateWarehouse updates warehouse attributes. Shrinking capacity
// below the quantity currently held is rejected.
func (s *Service) UpdateWarehouse(id uint, req *WarehouseUpdateRequest) (*Warehouse, error) {
	var wh Warehouse

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&wh).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "warehouse %d not found", id)
			}
			return fmt.Errorf("failed to find warehouse: %w", err)
		}

		updates := make(map[string]interface{})

		if req.Name != nil {
			updates["name"] = *req.Name
		}
		if req.Location != nil {
			updates["location"] = *req.Location
		}
		if req.Capacity != nil {
			if *req.Capacity < 0 {
				return shared.Wrap(shared.ErrInvalidInput, "capacity cannot be negative")
			}
			if *req.Capacity > 0 {
				total, err := s.totalQuantity(tx, id)
				if err != nil {
					return err
				}
				if total > *req.Capacity {
					return shared.Wrap(shared.ErrCapacityExceeded,
						"warehouse %s holds %d units, cannot shrink capacity to %d", wh.Code, total, *req.Capacity)
				}
			}
			updates["capacity"] = *req.Capacity
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
		if req.IsDefault != nil {
			if *req.IsDefault {
				if err := tx.Model(&Warehouse{}).Where("is_default = ? AND id <> ?", true, id).Update("is_default", false).Error; err != nil {
					return fmt.Errorf("failed to clear default warehouse: %w", err)
				}
			}
			updates["is_default"] = *req.IsDefault
		}

		if err := tx.Model(&wh).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update warehouse: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &wh, nil
}

// DeleteWarehouse soft deletes a warehouse. A warehouse that still
// holds stock, reservations or expected returns cannot be deleted.
func (s *Service) DeleteWarehouse(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var wh Warehouse
		if err := tx.Where("id = ?", id).First(&wh).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return shared.Wrap(shared.ErrNotFound, "warehouse %d not found", id)
			}
			return fmt.Errorf("failed to find warehouse: %w", err)
		}

		var held int64
		if err := tx.Model(&StockLine{}).
			Where("warehouse_id = ?", id).
			Where("quantity > 0 OR reserved_quantity > 0 OR expected_returns > 0").
			Count(&held).Error; err != nil {
			return fmt.Errorf("failed to check warehouse stock: %w", err)
		}
		if held > 0 {
			return shared.Wrap(shared.ErrInvalidInput,
				"warehouse %s still holds stock on %d lines, move or clear it first", wh.Code, held)
		}

		if err := tx.Where("warehouse_id = ?", id).Delete(&StockLine{}).Error; err != nil {
			return fmt.Errorf("failed to delete stock lines: %w", err)
		}
		if err := tx.Delete(&wh).Error; err != nil {
			return fmt.Errorf("failed to delete warehouse: %w", err)
		}
		return nil
	})
}

// StockListRequest represents stock level query parameters
type StockListRequest struct {
	Page        int   `form:"page,default=1"`
	Limit       int   `form:"limit,default=20"`
	WarehouseID uint  `form:"warehouse_id"`
	ProductID   uint  `form:"product_id"`
	LowOnly     bool  `form:"low_only"`
	Tagged      string `form:"tagged"`
}

// StockListResponse represents stock lines with pagination
type StockListResponse struct {
	StockLines []StockLine `json:"stock_lines"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// GetStockLevels retrieves stock lines with filtering and pagination
func (s *Service) GetStockLevels(req *StockListRequest) (*StockListResponse, error) {
	var lines []StockLine
	var total int64

	query := s.db.Model(&StockLine{})

	if req.WarehouseID > 0 {
		query = query.Where("warehouse_id = ?", req.WarehouseID)
	}
	if req.ProductID > 0 {
		query = query.Where("product_id = ?", req.ProductID)
	}
	if req.LowOnly {
		query = query.Where("quantity - reserved_quantity <= ?", s.config.Inventory.LowStockThreshold)
	}
	if req.Tagged != "" {
		query = query.Where("tags LIKE ?", "%"+req.Tagged+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count stock lines: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.Order("warehouse_id ASC, product_id ASC").Offset(offset).Limit(req.Limit).Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve stock lines: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &StockListResponse{
		StockLines: lines,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// GetAvailable returns the unreserved quantity for one line, zero
// when the warehouse has no line for the product
func (s *Service) GetAvailable(warehouseID, productID uint, variantID *uint) (int, error) {
	line, err := s.findLine(s.db, warehouseID, productID, variantID)
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return line.Available(), nil
}

// ProductStockSummary aggregates one product's stock across warehouses
type ProductStockSummary struct {
	ProductID            uint        `json:"product_id"`
	VariantID            *uint       `json:"variant_id,omitempty"`
	TotalQuantity        int         `json:"total_quantity"`
	TotalReserved        int         `json:"total_reserved"`
	TotalAvailable       int         `json:"total_available"`
	TotalExpectedReturns int         `json:"total_expected_returns"`
	TotalReturned        int         `json:"total_returned"`
	Lines                []StockLine `json:"lines"`
}

// GetProductStock aggregates stock for one product across all warehouses
func (s *Service) GetProductStock(productID uint, variantID *uint) (*ProductStockSummary, error) {
	var lines []StockLine
	query := s.db.Where("product_id = ?", productID)
	query = variantScope(query, variantID)
	if err := query.Order("warehouse_id ASC").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve stock lines: %w", err)
	}

	summary := &ProductStockSummary{
		ProductID: productID,
		VariantID: variantID,
		Lines:     lines,
	}
	for _, l := range lines {
		summary.TotalQuantity += l.Quantity
		summary.TotalReserved += l.ReservedQuantity
		summary.TotalAvailable += l.Available()
		summary.TotalExpectedReturns += l.ExpectedReturns
		summary.TotalReturned += l.ReturnedQuantity
	}
	return summary, nil
}

// MovementListRequest represents movement log query parameters
type MovementListRequest struct {
	Page          int    `form:"page,default=1"`
	Limit         int    `form:"limit,default=50"`
	WarehouseID   uint   `form:"warehouse_id"`
	ProductID     uint   `form:"product_id"`
	MovementType  string `form:"movement_type"`
	ReferenceType string `form:"reference_type"`
	TransferID    string `form:"transfer_id"`
	DateFrom      string `form:"date_from"` // YYYY-MM-DD, inclusive
	DateTo        string `form:"date_to"`   // YYYY-MM-DD, inclusive
}

// MovementListResponse represents movements with pagination
type MovementListResponse struct {
	Movements  []StockMovement `json:"movements"`
	Pagination Pagination      `json:"pagination"`
}

// GetMovements retrieves the movement log, newest first
func (s *Service) GetMovements(req *MovementListRequest) (*MovementListResponse, error) {
	var movements []StockMovement
	var total int64

	query := s.db.Model(&StockMovement{})

	if req.WarehouseID > 0 {
		query = query.Where("warehouse_id = ?", req.WarehouseID)
	}
	if req.ProductID > 0 {
		query = query.Where("product_id = ?", req.ProductID)
	}
	if req.MovementType != "" {
		query = query.Where("movement_type = ?", req.MovementType)
	}
	if req.ReferenceType != "" {
		query = query.Where("reference_type = ?", req.ReferenceType)
	}
	if req.TransferID != "" {
		query = query.Where("transfer_id = ?", req.TransferID)
	}
	if req.DateFrom != "" {
		from, err := time.Parse("2006-01-02", req.DateFrom)
		if err != nil {
			return nil, shared.Wrap(shared.ErrInvalidInput, "invalid date_from %q, expected YYYY-MM-DD", req.DateFrom)
		}
		query = query.Where("created_at >= ?", from)
	}
	if req.DateTo != "" {
		to, err := time.Parse("2006-01-02", req.DateTo)
		if err != nil {
			return nil, shared.Wrap(shared.ErrInvalidInput, "invalid date_to %q, expected YYYY-MM-DD", req.DateTo)
		}
		query = query.Where("created_at < ?", to.AddDate(0, 0, 1))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count movements: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.Order("id DESC").Offset(offset).Limit(req.Limit).Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve movements: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &MovementListResponse{
		Movements: movements,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}
