package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"contactbook/internal/middleware"
	"contactbook/internal/models"
	"contactbook/internal/repository"
	"contactbook/internal/service"
)

const dateLayout = "2006-01-02"

type contactRequest struct {
	FirstName   string  `json:"first_name" binding:"required,min=3,max=16"`
	LastName    string  `json:"last_name" binding:"required,min=3,max=16"`
	Email       string  `json:"email" binding:"required,email"`
	Phone       string  `json:"phone" binding:"required,max=16,phone"`
	Birthday    string  `json:"birthday" binding:"required,datetime=2006-01-02"`
	Description *string `json:"description" binding:"omitempty,max=250"`
}

func (r contactRequest) fields() models.ContactFields {
	birthday, _ := time.Parse(dateLayout, r.Birthday)
	return models.ContactFields{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Email:       r.Email,
		Phone:       r.Phone,
		Birthday:    birthday,
		Description: r.Description,
	}
}

type contactResponse struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Birthday    string    `json:"birthday"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newContactResponse(c models.Contact) contactResponse {
	return contactResponse{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		Phone:       c.Phone,
		Birthday:    c.Birthday.Format(dateLayout),
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func newContactList(contacts []models.Contact) []contactResponse {
	out := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, newContactResponse(c))
	}
	return out
}

type listQuery struct {
	Limit  int `form:"limit,default=10" binding:"min=1,max=200"`
	Offset int `form:"offset,default=0" binding:"min=0"`
}

func (h HandlerSet) ListContacts(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.invalid(c, err)
		return
	}

	contacts, err := h.contacts.List(c.Request.Context(), user.ID, q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newContactList(contacts))
}

func (h HandlerSet) GetContact(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	id, ok := h.contactID(c)
	if !ok {
		return
	}

	contact, err := h.contacts.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newContactResponse(contact))
}

func (h HandlerSet) CreateContact(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	contact, err := h.contacts.Create(c.Request.Context(), user.ID, req.fields())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newContactResponse(contact))
}

func (h HandlerSet) UpdateContact(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	id, ok := h.contactID(c)
	if !ok {
		return
	}

	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	contact, err := h.contacts.Update(c.Request.Context(), user.ID, id, req.fields())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newContactResponse(contact))
}

func (h HandlerSet) DeleteContact(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	id, ok := h.contactID(c)
	if !ok {
		return
	}

	if _, err := h.contacts.Delete(c.Request.Context(), user.ID, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) SearchByEmail(c *gin.Context) {
	h.search(c, repository.SearchByEmail, "contact_email")
}

func (h HandlerSet) SearchByFirstName(c *gin.Context) {
	h.search(c, repository.SearchByFirstName, "contact_first_name")
}

func (h HandlerSet) SearchByLastName(c *gin.Context) {
	h.search(c, repository.SearchByLastName, "contact_last_name")
}

func (h HandlerSet) search(c *gin.Context, field repository.ContactSearchField, param string) {
	user, _ := middleware.CurrentUser(c)

	contacts, err := h.contacts.Search(c.Request.Context(), user.ID, field, c.Query(param))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newContactList(contacts))
}

type birthdaysQuery struct {
	Days int `form:"days,default=7" binding:"min=1,max=366"`
}

func (h HandlerSet) UpcomingBirthdays(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var q birthdaysQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.invalid(c, err)
		return
	}

	contacts, err := h.contacts.UpcomingBirthdays(c.Request.Context(), user.ID, q.Days)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(contacts) == 0 {
		h.fail(c, service.ErrContactNotFound)
		return
	}
	c.JSON(http.StatusOK, newContactList(contacts))
}

func (h HandlerSet) contactID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": "contact id must be a positive integer"})
		return 0, false
	}
	return id, true
}
