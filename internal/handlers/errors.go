package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contactbook/internal/middleware"
	"contactbook/internal/service"
)

const (
	detailNotFound     = "Not found!"
	detailInternal     = "internal_server_error"
	detailInvalidToken = "Invalid refresh token"
)

// statusFor maps service errors to the status and detail a client sees.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, detailInvalidToken
	case errors.Is(err, service.ErrNotConfirmed):
		return http.StatusForbidden, "Email not confirmed"
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "Account already exists"
	case errors.Is(err, service.ErrContactNotFound):
		return http.StatusNotFound, detailNotFound
	case errors.Is(err, service.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "Image too large"
	case errors.Is(err, service.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType, "Unsupported image type"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, detailInternal
	}
}

func (h HandlerSet) fail(c *gin.Context, err error) {
	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", middleware.GetRequestID(c)).
			Msg("request failed")
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func (h HandlerSet) invalid(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": validationMessages(err)})
}
