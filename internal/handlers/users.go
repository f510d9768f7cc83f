package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contactbook/internal/media/sniffer"
	"contactbook/internal/middleware"
	"contactbook/internal/service"
)

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		h.fail(c, service.ErrUnauthenticated)
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h HandlerSet) UpdateAvatar(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		h.fail(c, service.ErrUnauthenticated)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.invalid(c, err)
		return
	}
	defer file.Close()

	updated, err := h.avatars.Upload(c.Request.Context(), service.AvatarInput{
		UserID:   user.ID,
		File:     file,
		Declared: sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, newUserResponse(updated))
}
