package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	pkgAuth "github.com/polkiloo/jobber/internal/pkg/auth"
)

const (
	// ServiceContextKey is a gin context key for the verified gateway service.
	ServiceContextKey  = "gatewayService"
	gatewayTokenHeader = "gatewayToken"
)

// TokenParser verifies gateway tokens.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// GatewayRequired rejects requests that do not carry a valid gateway token.
func GatewayRequired(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(gatewayTokenHeader))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "request not coming from api gateway"})
			return
		}

		service, err := parser.ParseToken(token)
		if err != nil {
			if errors.Is(err, pkgAuth.ErrInvalidToken) || errors.Is(err, pkgAuth.ErrUnknownService) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid request, request not coming from api gateway"})
				return
			}
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		c.Set(ServiceContextKey, service)
		c.Next()
	}
}
