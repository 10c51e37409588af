package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/server/http/dto"
	"github.com/polkiloo/jobber/internal/server/http/middleware"
)

// CurrentService returns the gateway service that signed the request.
func CurrentService(c *gin.Context) string {
	val, ok := c.Get(middleware.ServiceContextKey)
	if !ok {
		return ""
	}
	service, _ := val.(string)
	return service
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domainErrors.ErrInvalidOrder), errors.Is(err, domainErrors.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, domainErrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domainErrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainErrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domainErrors.ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domainErrors.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Message: message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Message: message})
}
