package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"contactbook/internal/cache"
	"contactbook/internal/config"
	"contactbook/internal/ids"
	"contactbook/internal/mail"
	"contactbook/internal/models"
	"contactbook/internal/repository"
	"contactbook/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotConfirmed       = errors.New("email not confirmed")
	ErrEmailTaken         = errors.New("account already exists")
)

type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdateRefreshToken(ctx context.Context, id string, hash []byte) error
	MarkConfirmed(ctx context.Context, email string) error
	UpdateAvatar(ctx context.Context, id string, url string) (models.User, error)
	ListConfirmed(ctx context.Context, limit, offset int) ([]models.User, error)
}

// AvatarResolver finds a default avatar for a new account.
type AvatarResolver interface {
	Resolve(ctx context.Context, email string) (string, error)
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

type AuthService struct {
	users     UserStore
	tokens    *security.TokenService
	passwords *security.PasswordHasher
	sessions  cache.SessionCache
	mailer    mail.Sender
	avatars   AvatarResolver
	cfg       *config.AppConfig
	log       zerolog.Logger
}

func NewAuthService(
	users UserStore,
	tokens *security.TokenService,
	passwords *security.PasswordHasher,
	sessions cache.SessionCache,
	mailer mail.Sender,
	avatars AvatarResolver,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	if sessions == nil {
		sessions = cache.NopSessionCache{}
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		sessions:  sessions,
		mailer:    mailer,
		avatars:   avatars,
		cfg:       cfg,
		log:       log,
	}
}

type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Signup creates an unconfirmed account and mails a confirmation link.
// Neither the avatar lookup nor the mail hand-off can fail the signup.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (models.User, error) {
	input.Email = strings.TrimSpace(input.Email)
	if input.Email == "" || input.Password == "" {
		return models.User{}, fmt.Errorf("email and password required")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}

	passwordHash, err := s.passwords.Hash(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: passwordHash,
	}

	if s.avatars != nil {
		avatar, err := s.avatars.Resolve(ctx, input.Email)
		if err != nil {
			s.log.Warn().Err(err).Str("email", input.Email).Msg("avatar lookup failed, continuing without avatar")
		} else if avatar != "" {
			user.AvatarURL = &avatar
		}
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	s.sendConfirmation(ctx, created)

	return created, nil
}

type LoginInput struct {
	Email    string
	Password string
}

// Login returns ErrInvalidCredentials for an unknown e-mail and for a wrong
// password alike. A successful login replaces the stored refresh token,
// revoking the previous one.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (TokenPair, error) {
	email := strings.TrimSpace(input.Email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.passwords.VerifyDummy(input.Password)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.passwords.Verify(input.Password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return TokenPair{}, ErrInvalidCredentials
	}
	if !ok {
		return TokenPair{}, ErrInvalidCredentials
	}

	return s.issuePair(ctx, user.ID)
}

// Refresh exchanges a refresh token for a new pair. The presented token must
// equal the one stored for the user; the stored one is rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	if !security.RefreshTokenMatches(refreshToken, user.RefreshTokenHash) {
		s.log.Warn().Str("user_id", user.ID).Msg("refresh token does not match stored token")
		return TokenPair{}, ErrInvalidToken
	}

	return s.issuePair(ctx, user.ID)
}

// Logout revokes the stored refresh token. Outstanding access tokens stay
// valid until they expire.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.users.UpdateRefreshToken(ctx, userID, nil); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUnauthenticated
		}
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer access token to its user and applies the
// confirmed-email policy.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	user, err := s.Identify(ctx, accessToken)
	if err != nil {
		return models.User{}, err
	}
	if s.cfg.Security.RequireConfirmed && !user.Confirmed {
		return models.User{}, ErrNotConfirmed
	}
	return user, nil
}

// Identify resolves a bearer access token to its user regardless of whether
// the e-mail is confirmed. Logout uses it so any session can be revoked.
func (s *AuthService) Identify(ctx context.Context, accessToken string) (models.User, error) {
	if accessToken == "" {
		return models.User{}, ErrUnauthenticated
	}

	subject, hit, err := s.sessions.Get(ctx, accessToken)
	if err != nil {
		s.log.Warn().Err(err).Msg("session cache lookup failed")
		hit = false
	}

	if !hit {
		claims, err := s.tokens.ValidateAccessToken(accessToken)
		if err != nil {
			return models.User{}, ErrUnauthenticated
		}
		subject = claims.Subject

		ttl := claims.Remaining(s.tokens.Now())
		if s.cfg.Security.SessionCacheTTL < ttl {
			ttl = s.cfg.Security.SessionCacheTTL
		}
		if err := s.sessions.Put(ctx, accessToken, subject, ttl); err != nil {
			s.log.Warn().Err(err).Msg("session cache store failed")
		}
	}

	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUnauthenticated
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// ConfirmEmail marks the token's address as confirmed. Confirming twice is
// not an error; the first return value reports whether it already was.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (bool, error) {
	email, err := s.tokens.ValidateEmailConfirmationToken(token)
	if err != nil {
		return false, ErrInvalidToken
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, ErrInvalidToken
		}
		return false, fmt.Errorf("find user: %w", err)
	}
	if user.Confirmed {
		return true, nil
	}

	if err := s.users.MarkConfirmed(ctx, email); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, ErrInvalidToken
		}
		return false, fmt.Errorf("confirm user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("email confirmed")
	return false, nil
}

// RequestConfirmation re-sends the confirmation link. The outcome is not
// reported so callers cannot probe which addresses exist.
func (s *AuthService) RequestConfirmation(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if user.Confirmed {
		return nil
	}

	s.sendConfirmation(ctx, user)
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, userID string) (TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.users.UpdateRefreshToken(ctx, userID, security.HashRefreshToken(refreshToken)); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}, nil
}

func (s *AuthService) sendConfirmation(ctx context.Context, user models.User) {
	if s.mailer == nil {
		return
	}

	token, err := s.tokens.IssueEmailConfirmationToken(user.Email)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("issue confirmation token failed")
		return
	}

	msg, err := mail.ConfirmationMessage(user.Email, mail.ConfirmationData{
		Username:  user.Username,
		Link:      s.ConfirmationLink(token),
		ExpiresAt: s.tokens.Now().Add(s.cfg.Security.JWTConfirmTTL),
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("render confirmation failed")
		return
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("send confirmation failed")
	}
}

func (s *AuthService) ConfirmationLink(token string) string {
	return strings.TrimSuffix(s.cfg.HTTP.BaseURL, "/") + "/api/auth/confirmed_email/" + token
}

// AccessTokenTTL is exposed for response metadata.
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.cfg.Security.JWTAccessTTL
}
