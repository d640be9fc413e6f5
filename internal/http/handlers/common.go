package handlers

import "github.com/gin-gonic/gin"

// getAdminID extracts the authenticated admin ID from the gin context.
func getAdminID(c *gin.Context) uint64 {
	value, exists := c.Get("adminID")
	if !exists {
		return 0
	}
	id, ok := value.(uint64)
	if !ok {
		return 0
	}
	return id
}
