package models

import "time"

type Contact struct {
	ID          int64
	UserID      string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Birthday    time.Time
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContactFields is the mutable part of a contact, shared by create and update.
type ContactFields struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Birthday    time.Time
	Description *string
}
