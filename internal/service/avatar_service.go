package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"contactbook/internal/config"
	"contactbook/internal/media/sniffer"
	"contactbook/internal/models"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
	ErrNoAvatar         = errors.New("no gravatar for address")
)

type AvatarStore interface {
	PutAvatar(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type AvatarInput struct {
	UserID   string
	File     io.Reader
	Declared string
}

type AvatarService struct {
	users UserStore
	store AvatarStore
	cfg   *config.AppConfig
	log   zerolog.Logger
}

func NewAvatarService(users UserStore, store AvatarStore, cfg *config.AppConfig, log zerolog.Logger) *AvatarService {
	return &AvatarService{
		users: users,
		store: store,
		cfg:   cfg,
		log:   log,
	}
}

// Upload stores a new avatar image for the user and returns the updated user.
// The image type is taken from its magic bytes; a declared content type that
// disagrees is rejected.
func (s *AvatarService) Upload(ctx context.Context, input AvatarInput) (models.User, error) {
	if input.File == nil {
		return models.User{}, fmt.Errorf("%w: missing file", ErrInvalidInput)
	}

	limit := s.cfg.Avatar.MaxBytes
	data, err := io.ReadAll(io.LimitReader(input.File, limit+1))
	if err != nil {
		return models.User{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return models.User{}, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	if int64(len(data)) > limit {
		return models.User{}, ErrImageTooLarge
	}

	head := data
	if len(head) > sniffer.HeadSize {
		head = head[:sniffer.HeadSize]
	}
	result, err := sniffer.DetectHead(head)
	if err != nil {
		return models.User{}, ErrUnsupportedImage
	}
	if input.Declared != "" && input.Declared != "application/octet-stream" && input.Declared != result.MIME {
		return models.User{}, fmt.Errorf("%w: declared %s, actual %s", ErrUnsupportedImage, input.Declared, result.MIME)
	}

	key := path.Join("avatars", fmt.Sprintf("%s.%s", input.UserID, result.Extension()))
	url, err := s.store.PutAvatar(ctx, key, bytes.NewReader(data), int64(len(data)), result.MIME)
	if err != nil {
		return models.User{}, fmt.Errorf("store avatar: %w", err)
	}

	user, err := s.users.UpdateAvatar(ctx, input.UserID, url)
	if err != nil {
		return models.User{}, fmt.Errorf("save avatar url: %w", err)
	}

	s.log.Info().Str("user_id", input.UserID).Str("format", string(result.Type)).Int("bytes", len(data)).Msg("avatar updated")
	return user, nil
}

// Gravatar resolves the default avatar of an e-mail address.
type Gravatar struct {
	baseURL string
	check   bool
	client  *http.Client
}

func NewGravatar(cfg config.AvatarConfig) *Gravatar {
	return &Gravatar{
		baseURL: strings.TrimSuffix(cfg.GravatarURL, "/"),
		check:   cfg.GravatarCheck,
		client:  &http.Client{Timeout: cfg.CheckTimeout},
	}
}

func (g *Gravatar) URL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return g.baseURL + "/" + hex.EncodeToString(sum[:])
}

func (g *Gravatar) Resolve(ctx context.Context, email string) (string, error) {
	url := g.URL(email)
	if !g.check {
		return url, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url+"?d=404", nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gravatar probe: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNoAvatar
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("gravatar probe: status %d", resp.StatusCode)
	}
	return url, nil
}
