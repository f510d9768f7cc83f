package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"contactbook/internal/models"
	"contactbook/internal/repository"
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrInvalidInput    = errors.New("invalid input")
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 200
	MaxBirthdayDays  = 366
)

type ContactStore interface {
	Create(ctx context.Context, userID string, fields models.ContactFields) (models.Contact, error)
	List(ctx context.Context, userID string, limit, offset int) ([]models.Contact, error)
	ListAll(ctx context.Context, userID string) ([]models.Contact, error)
	GetByID(ctx context.Context, userID string, id int64) (models.Contact, error)
	Search(ctx context.Context, userID string, field repository.ContactSearchField, term string) ([]models.Contact, error)
	Update(ctx context.Context, userID string, id int64, fields models.ContactFields) (models.Contact, error)
	Delete(ctx context.Context, userID string, id int64) (models.Contact, error)
}

type ContactService struct {
	contacts ContactStore
	now      func() time.Time
	log      zerolog.Logger
}

func NewContactService(contacts ContactStore, log zerolog.Logger) *ContactService {
	return &ContactService{
		contacts: contacts,
		now:      time.Now,
		log:      log,
	}
}

// WithClock replaces the clock used for birthday windows.
func (s *ContactService) WithClock(now func() time.Time) *ContactService {
	s.now = now
	return s
}

func (s *ContactService) List(ctx context.Context, userID string, limit, offset int) ([]models.Contact, error) {
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 0 || limit > MaxListLimit || offset < 0 {
		return nil, fmt.Errorf("%w: limit must be 1..%d and offset non-negative", ErrInvalidInput, MaxListLimit)
	}
	return s.contacts.List(ctx, userID, limit, offset)
}

func (s *ContactService) Get(ctx context.Context, userID string, id int64) (models.Contact, error) {
	if id < 1 {
		return models.Contact{}, ErrContactNotFound
	}
	contact, err := s.contacts.GetByID(ctx, userID, id)
	return contact, mapContactErr(err)
}

func (s *ContactService) Search(ctx context.Context, userID string, field repository.ContactSearchField, term string) ([]models.Contact, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is empty", ErrInvalidInput)
	}
	return s.contacts.Search(ctx, userID, field, term)
}

func (s *ContactService) Create(ctx context.Context, userID string, fields models.ContactFields) (models.Contact, error) {
	contact, err := s.contacts.Create(ctx, userID, normalizeFields(fields))
	if err != nil {
		return models.Contact{}, err
	}
	s.log.Debug().Str("user_id", userID).Int64("contact_id", contact.ID).Msg("contact created")
	return contact, nil
}

func (s *ContactService) Update(ctx context.Context, userID string, id int64, fields models.ContactFields) (models.Contact, error) {
	if id < 1 {
		return models.Contact{}, ErrContactNotFound
	}
	contact, err := s.contacts.Update(ctx, userID, id, normalizeFields(fields))
	return contact, mapContactErr(err)
}

func (s *ContactService) Delete(ctx context.Context, userID string, id int64) (models.Contact, error) {
	if id < 1 {
		return models.Contact{}, ErrContactNotFound
	}
	contact, err := s.contacts.Delete(ctx, userID, id)
	return contact, mapContactErr(err)
}

// UpcomingBirthdays returns the user's contacts whose next birthday falls
// within [today, today+days), ordered by that date.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, userID string, days int) ([]models.Contact, error) {
	if days < 1 || days > MaxBirthdayDays {
		return nil, fmt.Errorf("%w: days must be 1..%d", ErrInvalidInput, MaxBirthdayDays)
	}
	all, err := s.contacts.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return UpcomingBirthdays(all, s.now(), days), nil
}

func UpcomingBirthdays(contacts []models.Contact, now time.Time, days int) []models.Contact {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := today.AddDate(0, 0, days)

	type dated struct {
		contact models.Contact
		next    time.Time
	}
	var hits []dated
	for _, c := range contacts {
		next := NextBirthday(c.Birthday, today)
		if next.Before(end) {
			hits = append(hits, dated{contact: c, next: next})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].next.Before(hits[j].next)
	})

	out := make([]models.Contact, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.contact)
	}
	return out
}

// NextBirthday is the first anniversary of birthday on or after today
// (a UTC midnight). Feb 29 is observed on Feb 28 in common years.
func NextBirthday(birthday, today time.Time) time.Time {
	next := anniversary(birthday, today.Year())
	if next.Before(today) {
		next = anniversary(birthday, today.Year()+1)
	}
	return next
}

func anniversary(birthday time.Time, year int) time.Time {
	month, day := birthday.Month(), birthday.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func normalizeFields(f models.ContactFields) models.ContactFields {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	if f.Description != nil && strings.TrimSpace(*f.Description) == "" {
		f.Description = nil
	}
	return f
}

func mapContactErr(err error) error {
	if errors.Is(err, repository.ErrContactNotFound) {
		return ErrContactNotFound
	}
	return err
}
