// internal/interfaces/http/handlers/warehouse.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/warehouse"
	"github.com/your-org/inventory-backend/internal/interfaces/http/middleware"
)

// WarehouseHandler handles warehouse and stock endpoints
type WarehouseHandler struct {
	stockService *warehouse.Service
	config       *config.Config
}

// NewWarehouseHandler creates a new warehouse handler
func NewWarehouseHandler(stockService *warehouse.Service, cfg *config.Config) *WarehouseHandler {
	return &WarehouseHandler{
		stockService: stockService,
		config:       cfg,
	}
}

// WAREHOUSE ENDPOINTS

// CreateWarehouse handles POST /admin/warehouses
func (h *WarehouseHandler) CreateWarehouse(c *gin.Context) {
	var req warehouse.WarehouseCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	wh, err := h.stockService.CreateWarehouse(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Warehouse created successfully",
		"data":    wh,
	})
}

// GetWarehouses handles GET /warehouses
func (h *WarehouseHandler) GetWarehouses(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	warehouses, err := h.stockService.GetWarehouses(includeInactive)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Warehouses retrieved successfully",
		"data":    warehouses,
	})
}

// GetWarehouse handles GET /warehouses/:id
func (h *WarehouseHandler) GetWarehouse(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	wh, err := h.stockService.GetWarehouse(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Warehouse retrieved successfully",
		"data":    wh,
	})
}

// UpdateWarehouse handles PUT /admin/warehouses/:id
func (h *WarehouseHandler) UpdateWarehouse(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req warehouse.WarehouseUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	wh, err := h.stockService.UpdateWarehouse(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Warehouse updated successfully",
		"data":    wh,
	})
}

// DeleteWarehouse handles DELETE /admin/warehouses/:id
func (h *WarehouseHandler) DeleteWarehouse(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.stockService.DeleteWarehouse(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Warehouse deleted successfully",
	})
}

// STOCK ENDPOINTS

// GetStockLevels handles GET /stock
func (h *WarehouseHandler) GetStockLevels(c *gin.Context) {
	var req warehouse.StockListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return
	}

	response, err := h.stockService.GetStockLevels(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock levels retrieved successfully",
		"data":    response,
	})
}

// GetProductStock handles GET /stock/products/:productId
func (h *WarehouseHandler) GetProductStock(c *gin.Context) {
	productID, ok := parseIDParam(c, "productId")
	if !ok {
		return
	}

	var variantID *uint
	if v := c.Query("variant_id"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 32); err == nil {
			id := uint(parsed)
			variantID = &id
		}
	}

	summary, err := h.stockService.GetProductStock(productID, variantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product stock retrieved successfully",
		"data":    summary,
	})
}

// AddStock handles POST /admin/stock/add
func (h *WarehouseHandler) AddStock(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req warehouse.AddStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}
	req.ReferenceType = warehouse.ReferenceTypeAdjustment
	req.ReferenceID = 0
	req.CreatedBy = userID

	line, err := h.stockService.AddStock(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock added successfully",
		"data":    line,
	})
}

// RemoveStock handles POST /admin/stock/remove
func (h *WarehouseHandler) RemoveStock(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req warehouse.RemoveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}
	req.CreatedBy = userID

	line, err := h.stockService.RemoveStock(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock removed successfully",
		"data":    line,
	})
}

// Transfer handles POST /admin/stock/transfer
func (h *WarehouseHandler) Transfer(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req warehouse.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}
	req.CreatedBy = userID

	result, err := h.stockService.Transfer(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock transferred successfully",
		"data":    result,
	})
}

// GetMovements handles GET /stock/movements
func (h *WarehouseHandler) GetMovements(c *gin.Context) {
	var req warehouse.MovementListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return
	}

	response, err := h.stockService.GetMovements(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    response,
	})
}
