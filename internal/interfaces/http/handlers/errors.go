// internal/interfaces/http/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-backend/internal/domain/shared"
)

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrAlreadyExists),
		errors.Is(err, shared.ErrAlreadyProcessed),
		errors.Is(err, shared.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrCapacityExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a domain error with the matching status code
func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}

// parseIDParam parses a numeric path parameter
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := parseUint(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return id, true
}
