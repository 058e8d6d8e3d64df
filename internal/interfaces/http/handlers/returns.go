// internal/interfaces/http/handlers/returns.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-backend/internal/config"
	"github.com/your-org/inventory-backend/internal/domain/returns"
	"github.com/your-org/inventory-backend/internal/interfaces/http/middleware"
)

// ReturnsHandler handles expected return endpoints
type ReturnsHandler struct {
	returnsService *returns.Service
	config         *config.Config
}

// NewReturnsHandler creates a new returns handler
func NewReturnsHandler(returnsService *returns.Service, cfg *config.Config) *ReturnsHandler {
	return &ReturnsHandler{
		returnsService: returnsService,
		config:         cfg,
	}
}

// GetExpectedReturns handles GET /returns
func (h *ReturnsHandler) GetExpectedReturns(c *gin.Context) {
	var req returns.ExpectedReturnListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return
	}

	response, err := h.returnsService.GetExpectedReturns(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Expected returns retrieved successfully",
		"data":    response,
	})
}

// GetExpectedReturn handles GET /returns/:id
func (h *ReturnsHandler) GetExpectedReturn(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	expected, err := h.returnsService.GetExpectedReturn(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Expected return retrieved successfully",
		"data":    expected,
	})
}

// Receive handles POST /returns/:id/receive
func (h *ReturnsHandler) Receive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)

	var req returns.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	receipt, err := h.returnsService.Receive(id, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Return received successfully",
		"data":    receipt,
	})
}

// MarkInTransit handles POST /returns/:id/in-transit
func (h *ReturnsHandler) MarkInTransit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)

	expected, err := h.returnsService.MarkInTransit(id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Expected return marked in transit",
		"data":    expected,
	})
}

// CancelExpectedReturn handles POST /returns/:id/cancel
func (h *ReturnsHandler) CancelExpectedReturn(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)

	expected, err := h.returnsService.CancelExpected(id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Expected return cancelled successfully",
		"data":    expected,
	})
}

// GetPendingSummary handles GET /returns/pending-summary
func (h *ReturnsHandler) GetPendingSummary(c *gin.Context) {
	warehouseID, err := parseUint(c.Query("warehouse_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid warehouse_id",
		})
		return
	}

	summary, err := h.returnsService.GetPendingSummary(warehouseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Pending return summary retrieved successfully",
		"data":    summary,
	})
}
