package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health.
func Health(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, service+" service is healthy and OK.")
	}
}
