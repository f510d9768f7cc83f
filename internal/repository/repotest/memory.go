// Package repotest provides in-memory stores for tests of the layers above
// the repositories.
package repotest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"contactbook/internal/models"
	"contactbook/internal/repository"
)

// Users is an in-memory user store with the semantics of the postgres one.
type Users struct {
	mu      sync.Mutex
	byID    map[string]models.User
	FailGet error
}

func NewUsers() *Users {
	return &Users{byID: map[string]models.User{}}
}

func (m *Users) Create(_ context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return models.User{}, repository.ErrDuplicateEmail
		}
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.byID[user.ID] = user
	return user, nil
}

func (m *Users) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *Users) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet != nil {
		return models.User{}, m.FailGet
	}
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *Users) UpdateRefreshToken(_ context.Context, id string, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.RefreshTokenHash = hash
	m.byID[id] = u
	return nil
}

func (m *Users) MarkConfirmed(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.byID {
		if u.Email == email {
			u.Confirmed = true
			m.byID[id] = u
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *Users) UpdateAvatar(_ context.Context, id string, url string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	u.AvatarURL = &url
	m.byID[id] = u
	return u, nil
}

func (m *Users) ListConfirmed(_ context.Context, limit, offset int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.byID {
		if u.Confirmed {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Contacts is an in-memory contact store scoped by owner like the postgres one.
type Contacts struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.Contact
}

func NewContacts() *Contacts {
	return &Contacts{rows: map[int64]models.Contact{}}
}

func (m *Contacts) Create(_ context.Context, userID string, f models.ContactFields) (models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := models.Contact{
		ID:          m.nextID,
		UserID:      userID,
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		Email:       f.Email,
		Phone:       f.Phone,
		Birthday:    f.Birthday,
		Description: f.Description,
	}
	m.rows[c.ID] = c
	return c, nil
}

func (m *Contacts) owned(userID string) []models.Contact {
	var out []models.Contact
	for _, c := range m.rows {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Contacts) List(_ context.Context, userID string, limit, offset int) ([]models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.owned(userID)
	if offset >= len(out) {
		return []models.Contact{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Contacts) ListAll(_ context.Context, userID string) ([]models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned(userID), nil
}

func (m *Contacts) GetByID(_ context.Context, userID string, id int64) (models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return models.Contact{}, repository.ErrContactNotFound
	}
	return c, nil
}

func (m *Contacts) Search(_ context.Context, userID string, field repository.ContactSearchField, term string) ([]models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Contact{}
	for _, c := range m.owned(userID) {
		var v string
		switch field {
		case repository.SearchByEmail:
			v = c.Email
		case repository.SearchByFirstName:
			v = c.FirstName
		case repository.SearchByLastName:
			v = c.LastName
		default:
			return nil, errors.New("unknown field")
		}
		if strings.Contains(v, term) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Contacts) Update(_ context.Context, userID string, id int64, f models.ContactFields) (models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return models.Contact{}, repository.ErrContactNotFound
	}
	c.FirstName, c.LastName, c.Email, c.Phone = f.FirstName, f.LastName, f.Email, f.Phone
	c.Birthday, c.Description = f.Birthday, f.Description
	m.rows[id] = c
	return c, nil
}

func (m *Contacts) Delete(_ context.Context, userID string, id int64) (models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return models.Contact{}, repository.ErrContactNotFound
	}
	delete(m.rows, id)
	return c, nil
}
