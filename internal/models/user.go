package models

import "time"

type User struct {
	ID               string
	Email            string
	Username         string
	PasswordHash     []byte
	Confirmed        bool
	RefreshTokenHash []byte
	AvatarURL        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasRefreshToken reports whether a refresh token is currently outstanding.
func (u User) HasRefreshToken() bool {
	return len(u.RefreshTokenHash) > 0
}
