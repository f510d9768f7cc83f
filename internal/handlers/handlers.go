package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"

	"contactbook/internal/config"
	"contactbook/internal/middleware"
	"contactbook/internal/service"
)

// Check probes one backing service for the health endpoints.
type Check func(ctx context.Context) error

type Dependencies struct {
	Log         zerolog.Logger
	Config      *config.AppConfig
	Auth        *service.AuthService
	Contacts    *service.ContactService
	Avatars     *service.AvatarService
	RateLimiter *limiter.Limiter
	Database    Check
	Cache       Check
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     *service.AuthService
	contacts *service.ContactService
	avatars  *service.AvatarService
	limiter  *limiter.Limiter
	dbCheck  Check
	rdCheck  Check
}

func NewHandlerSet(deps Dependencies) (HandlerSet, error) {
	if err := RegisterValidators(); err != nil {
		return HandlerSet{}, err
	}

	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Config,
		auth:     deps.Auth,
		contacts: deps.Contacts,
		avatars:  deps.Avatars,
		limiter:  deps.RateLimiter,
		dbCheck:  deps.Database,
		rdCheck:  deps.Cache,
	}, nil
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	router.GET("/healthchecker", h.HealthChecker)

	guard := middleware.Auth(h.auth, h.log)
	limited := middleware.RateLimit(h.limiter, h.log)

	auth := router.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.GET("/refresh_token", h.RefreshToken)
		auth.GET("/confirmed_email/:token", h.ConfirmedEmail)
		auth.POST("/request_email", h.RequestEmail)
		auth.POST("/logout", middleware.AuthAllowUnconfirmed(h.auth, h.log), h.Logout)
	}

	users := router.Group("/users", guard)
	{
		users.GET("/me", h.Me)
		users.PATCH("/avatar", h.UpdateAvatar)
	}

	contacts := router.Group("/contacts", guard)
	{
		contacts.GET("", limited, h.ListContacts)
		contacts.POST("", limited, h.CreateContact)
		contacts.GET("/email", h.SearchByEmail)
		contacts.GET("/first_name", h.SearchByFirstName)
		contacts.GET("/last_name", h.SearchByLastName)
		contacts.GET("/birthdays", h.UpcomingBirthdays)
		contacts.GET("/:id", limited, h.GetContact)
		contacts.PUT("/:id", h.UpdateContact)
		contacts.DELETE("/:id", h.DeleteContact)
	}
}
