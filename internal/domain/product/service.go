// internal/domain/product/service.go
package product

import (
	"fmt"
	"strings"
	"time"

	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// Service handles product business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new product service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// ProductListRequest represents product list query parameters
type ProductListRequest struct {
	Page      int    `form:"page,default=1"`
	Limit     int    `form:"limit,default=20"`
	Search    string `form:"search"`
	SortBy    string `form:"sort_by,default=created_at"`
	SortOrder string `form:"sort_order,default=desc"`
	IsActive  *bool  `form:"is_active"`
}

// ProductCreateRequest represents product creation data
type ProductCreateRequest struct {
	SKU         string `json:"sku" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Price       int64  `json:"price" binding:"required"`
	CostPrice   int64  `json:"cost_price"`
	Unit        string `json:"unit"`
	IsActive    bool   `json:"is_active"`
	Tags        string `json:"tags"`

	Variants []VariantCreateRequest `json:"variants"`
}

// VariantCreateRequest represents variant creation data
type VariantCreateRequest struct {
	SKU     string `json:"sku" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Price   int64  `json:"price"`
	Options string `json:"options"`
}

// ProductUpdateRequest represents product update data
type ProductUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	CostPrice   *int64  `json:"cost_price"`
	Unit        *string `json:"unit"`
	IsActive    *bool   `json:"is_active"`
	Tags        *string `json:"tags"`
}

// ProductResponse represents product response with pagination
type ProductResponse struct {
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
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

// GetProducts retrieves products with filtering and pagination
func (s *Service) GetProducts(req *ProductListRequest) (*ProductResponse, error) {
	var products []Product
	var total int64

	query := s.db.Model(&Product{}).Preload("Variants", "is_active = ?", true)

	// Apply filters
	if req.Search != "" {
		search := "%" + strings.ToLower(req.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(tags) LIKE ?", search, search, search)
	}

	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}

	// Count total records
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	// Apply sorting
	orderClause := s.buildOrderClause(req.SortBy, req.SortOrder)
	query = query.Order(orderClause)

	// Apply pagination
	offset := (req.Page - 1) * req.Limit
	if err := query.Offset(offset).Limit(req.Limit).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve products: %w", err)
	}

	// Calculate pagination info
	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	pagination := Pagination{
		Page:       req.Page,
		Limit:      req.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    req.Page < totalPages,
		HasPrev:    req.Page > 1,
	}

	return &ProductResponse{
		Products:   products,
		Pagination: pagination,
	}, nil
}

// GetProduct retrieves a single product by ID
func (s *Service) GetProduct(id uint) (*Product, error) {
	var product Product
	result := s.db.
		Preload("Variants", "is_active = ?", true).
		Where("id = ?", id).
		First(&product)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "product %d not found", id)
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", result.Error)
	}

	return &product, nil
}

// GetProductBySKU retrieves a single product by SKU
func (s *Service) GetProductBySKU(sku string) (*Product, error) {
	var product Product
	result := s.db.
		Preload("Variants", "is_active = ?", true).
		Where("sku = ?", sku).
		First(&product)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "product with SKU %s not found", sku)
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", result.Error)
	}

	return &product, nil
}

// GetVariant retrieves a single variant of a product
func (s *Service) GetVariant(productID, variantID uint) (*ProductVariant, error) {
	var variant ProductVariant
	result := s.db.
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "variant %d of product %d not found", variantID, productID)
		}
		return nil, fmt.Errorf("failed to retrieve variant: %w", result.Error)
	}

	return &variant, nil
}

// CreateProduct creates a new product with its variants
func (s *Service) CreateProduct(req *ProductCreateRequest) (*Product, error) {
	// Check if SKU already exists
	var existing Product
	if result := s.db.Where("sku = ?", req.SKU).First(&existing); result.Error == nil {
		return nil, shared.Wrap(shared.ErrAlreadyExists, "product with SKU %s already exists", req.SKU)
	}

	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}

	product := Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Slug:        s.generateSlug(req.Name),
		Description: req.Description,
		Price:       req.Price,
		CostPrice:   req.CostPrice,
		Unit:        unit,
		IsActive:    req.IsActive,
		Tags:        req.Tags,
	}

	for _, v := range req.Variants {
		product.Variants = append(product.Variants, ProductVariant{
			SKU:      v.SKU,
			Name:     v.Name,
			Price:    v.Price,
			Options:  v.Options,
			IsActive: true,
		})
	}

	if err := s.db.Create(&product).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return &product, nil
}

// UpdateProduct updates an existing product
func (s *Service) UpdateProduct(id uint, req *ProductUpdateRequest) (*Product, error) {
	var product Product
	result := s.db.Where("id = ?", id).First(&product)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "product %d not found", id)
		}
		return nil, fmt.Errorf("failed to find product: %w", result.Error)
	}

	// Update fields
	updates := make(map[string]interface{})

	if req.Name != nil {
		updates["name"] = *req.Name
		updates["slug"] = s.generateSlug(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.CostPrice != nil {
		updates["cost_price"] = *req.CostPrice
	}
	if req.Unit != nil {
		updates["unit"] = *req.Unit
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Tags != nil {
		updates["tags"] = *req.Tags
	}

	if err := s.db.Model(&product).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.db.Preload("Variants").First(&product, product.ID)

	return &product, nil
}

// DeleteProduct soft deletes a product
func (s *Service) DeleteProduct(id uint) error {
	result := s.db.Where("id = ?", id).Delete(&Product{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.Wrap(shared.ErrNotFound, "product %d not found", id)
	}
	return nil
}

// AddVariant adds a variant to an existing product
func (s *Service) AddVariant(productID uint, req *VariantCreateRequest) (*ProductVariant, error) {
	var product Product
	if err := s.db.Where("id = ?", productID).First(&product).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.Wrap(shared.ErrNotFound, "product %d not found", productID)
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}

	variant := ProductVariant{
		ProductID: productID,
		SKU:       req.SKU,
		Name:      req.Name,
		Price:     req.Price,
		Options:   req.Options,
		IsActive:  true,
	}

	if err := s.db.Create(&variant).Error; err != nil {
		return nil, fmt.Errorf("failed to create variant: %w", err)
	}

	return &variant, nil
}

// buildOrderClause builds ORDER BY clause for sorting
func (s *Service) buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"name":       true,
		"sku":        true,
		"price":      true,
		"created_at": true,
		"updated_at": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return fmt.Sprintf("%s %s", sortBy, sortOrder)
}

// generateSlug generates URL-friendly slug from name
func (s *Service) generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	return slug + "-" + fmt.Sprintf("%d", time.Now().Unix())
}
