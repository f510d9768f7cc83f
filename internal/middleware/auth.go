package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contactbook/internal/models"
	"contactbook/internal/service"
)

const (
	currentUserKey = "current_user"
	accessTokenKey = "access_token"
)

// DetailUnauthenticated is the single body used for every 401 of the guard.
const DetailUnauthenticated = "Could not validate credentials"

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (models.User, error)
}

// Identifier resolves a token without the confirmed-email policy.
type Identifier interface {
	Identify(ctx context.Context, accessToken string) (models.User, error)
}

func Auth(auth Authenticator, log zerolog.Logger) gin.HandlerFunc {
	return guard(auth.Authenticate, log)
}

// AuthAllowUnconfirmed guards routes an unconfirmed user must still reach,
// such as logout.
func AuthAllowUnconfirmed(auth Identifier, log zerolog.Logger) gin.HandlerFunc {
	return guard(auth.Identify, log)
}

func guard(resolve func(ctx context.Context, accessToken string) (models.User, error), log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c)
		if !ok {
			abortUnauthenticated(c)
			return
		}

		user, err := resolve(c.Request.Context(), tokenStr)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrUnauthenticated):
			abortUnauthenticated(c)
			return
		case errors.Is(err, service.ErrNotConfirmed):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Email not confirmed"})
			return
		default:
			log.Error().Err(err).Str("request_id", GetRequestID(c)).Msg("authenticate request")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal_server_error"})
			return
		}

		c.Set(accessTokenKey, tokenStr)
		c.Set(currentUserKey, user)

		c.Next()
	}
}

// BearerToken extracts the credentials of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(currentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

func abortUnauthenticated(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": DetailUnauthenticated})
}
