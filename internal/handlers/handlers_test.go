package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactbook/internal/cache"
	"contactbook/internal/config"
	"contactbook/internal/mail"
	"contactbook/internal/middleware"
	"contactbook/internal/repository/repotest"
	"contactbook/internal/security"
	"contactbook/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	t      *testing.T
	engine *gin.Engine
	users  *repotest.Users
	now    time.Time
	mu     sync.Mutex
	mails  []mail.Message
	dbErr  error
}

func (a *testAPI) clock() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now
}

func (a *testAPI) advance(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = a.now.Add(d)
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.AppConfig{
		Environment: "test",
		HTTP:        config.HTTPConfig{BaseURL: "http://api.test"},
		Security: config.SecurityConfig{
			JWTSecret:        "handler-secret",
			JWTAccessTTL:     15 * time.Minute,
			JWTRefreshTTL:    24 * time.Hour,
			JWTConfirmTTL:    24 * time.Hour,
			SessionCacheTTL:  5 * time.Minute,
			RequireConfirmed: true,
		},
		RateLimit: config.RateLimitConfig{Store: "memory", Requests: 2, Period: 5 * time.Second, Prefix: "t"},
		Avatar:    config.AvatarConfig{MaxBytes: 4096},
	}

	api := &testAPI{t: t, users: repotest.NewUsers(), now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}

	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret:     cfg.Security.JWTSecret,
		AccessTTL:  cfg.Security.JWTAccessTTL,
		RefreshTTL: cfg.Security.JWTRefreshTTL,
		ConfirmTTL: cfg.Security.JWTConfirmTTL,
	}, security.WithClock(api.clock))
	require.NoError(t, err)
	passwords, err := security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
	require.NoError(t, err)

	sender := mail.SenderFunc(func(_ context.Context, msg mail.Message) error {
		api.mu.Lock()
		defer api.mu.Unlock()
		api.mails = append(api.mails, msg)
		return nil
	})
	sessions := cache.NewMemorySessionCache().WithClock(api.clock)
	rl, err := middleware.NewRateLimiter(cfg.RateLimit, nil)
	require.NoError(t, err)

	log := zerolog.Nop()
	h, err := NewHandlerSet(Dependencies{
		Log:         log,
		Config:      cfg,
		Auth:        service.NewAuthService(api.users, tokens, passwords, sessions, sender, nil, cfg, log),
		Contacts:    service.NewContactService(repotest.NewContacts(), log).WithClock(api.clock),
		Avatars:     service.NewAvatarService(api.users, &fakeObjects{}, cfg, log),
		RateLimiter: rl,
		Database:    func(context.Context) error { return api.dbErr },
	})
	require.NoError(t, err)

	api.engine = gin.New()
	h.Register(api.engine.Group("/api"))
	return api
}

type fakeObjects struct{}

func (fakeObjects) PutAvatar(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	return "http://objects.test/" + key, nil
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

var linkPattern = regexp.MustCompile(`/api/auth/confirmed_email/(\S+)`)

func (a *testAPI) lastConfirmationPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(a.t, a.mails)
	m := linkPattern.FindStringSubmatch(a.mails[len(a.mails)-1].Body)
	require.Len(a.t, m, 2)
	return "/api/auth/confirmed_email/" + m[1]
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (a *testAPI) signupAndLogin(email string) tokenPair {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/auth/signup", "", gin.H{"username": "alice", "email": email, "password": "secret1"})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodGet, a.lastConfirmationPath(), "", nil)
	require.Equal(a.t, http.StatusOK, w.Code)

	w = a.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": "secret1"})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode[tokenPair](a.t, w)
}

func TestSignupConfirmLoginFlow(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/auth/signup", "", gin.H{"username": "alice", "email": "alice@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"confirmed":false`)

	w = api.do(http.MethodPost, "/api/auth/signup", "", gin.H{"username": "alice", "email": "alice@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"detail":"Account already exists"}`, w.Body.String())

	w = api.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	unconfirmed := decode[tokenPair](t, w)

	w = api.do(http.MethodGet, "/api/users/me", unconfirmed.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	confirm := api.lastConfirmationPath()
	w = api.do(http.MethodGet, confirm, "", nil)
	assert.JSONEq(t, `{"message":"Email confirmed"}`, w.Body.String())
	w = api.do(http.MethodGet, confirm, "", nil)
	assert.JSONEq(t, `{"message":"Your email is already confirmed"}`, w.Body.String())

	w = api.do(http.MethodGet, "/api/auth/confirmed_email/garbage", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"Verification error"}`, w.Body.String())

	w = api.do(http.MethodGet, "/api/users/me", unconfirmed.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"alice@example.com"`)

	api.advance(16 * time.Minute)
	w = api.do(http.MethodGet, "/api/users/me", unconfirmed.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"detail":"Could not validate credentials"}`, w.Body.String())
}

func TestLoginAcceptsPasswordForm(t *testing.T) {
	api := newTestAPI(t)
	api.signupAndLogin("form@example.com")

	form := url.Values{"username": {"form@example.com"}, "password": {"secret1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bearer", decode[tokenPair](t, w).TokenType)

	w = api.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "form@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"detail":"Invalid credentials"}`, w.Body.String())
	w = api.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ghost@example.com", "password": "nope"})
	assert.JSONEq(t, `{"detail":"Invalid credentials"}`, w.Body.String())
}

func TestRefreshAndLogout(t *testing.T) {
	api := newTestAPI(t)
	pair := api.signupAndLogin("bob@example.com")

	w := api.do(http.MethodGet, "/api/auth/refresh_token", pair.RefreshToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rotated := decode[tokenPair](t, w)

	w = api.do(http.MethodPost, "/api/auth/logout", rotated.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	for _, token := range []string{pair.RefreshToken, rotated.RefreshToken, ""} {
		w = api.do(http.MethodGet, "/api/auth/refresh_token", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"detail":"Invalid refresh token"}`, w.Body.String())
	}
}

func TestUnconfirmedUserCanLogOut(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/auth/signup", "", gin.H{"username": "carol", "email": "carol@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = api.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "carol@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	pair := decode[tokenPair](t, w)

	w = api.do(http.MethodGet, "/api/auth/refresh_token", pair.RefreshToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rotated := decode[tokenPair](t, w)

	w = api.do(http.MethodGet, "/api/users/me", rotated.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPost, "/api/auth/logout", rotated.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = api.do(http.MethodGet, "/api/auth/refresh_token", rotated.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"detail":"Invalid refresh token"}`, w.Body.String())

	w = api.do(http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestEmailDoesNotEnumerate(t *testing.T) {
	api := newTestAPI(t)

	for _, email := range []string{"ghost@example.com", "bad"} {
		w := api.do(http.MethodPost, "/api/auth/request_email", "", gin.H{"email": email})
		if email == "bad" {
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			continue
		}
		assert.JSONEq(t, `{"message":"Check your email for confirmation."}`, w.Body.String())
	}
}

func validContact(first string, birthday string) gin.H {
	return gin.H{
		"first_name": first,
		"last_name":  "Smith",
		"email":      strings.ToLower(first) + "@example.com",
		"phone":      "+380 (63) 123-45",
		"birthday":   birthday,
	}
}

func TestContactsCRUDAndSearch(t *testing.T) {
	api := newTestAPI(t)
	token := api.signupAndLogin("carol@example.com").AccessToken

	w := api.do(http.MethodPost, "/api/contacts", token, validContact("Johnny", "1990-04-03"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[contactResponse](t, w)
	assert.Equal(t, "1990-04-03", created.Birthday)

	w = api.do(http.MethodPost, "/api/contacts", token, validContact("Maria", "1985-09-10"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(http.MethodGet, "/api/contacts/first_name?contact_first_name=ohn", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[[]contactResponse](t, w)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)

	w = api.do(http.MethodGet, "/api/contacts/email?contact_email=nobody", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = api.do(http.MethodGet, "/api/contacts/birthdays?days=7", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]contactResponse](t, w), 1)

	update := validContact("Johnny", "1990-04-03")
	update["last_name"] = "Walker"
	w = api.do(http.MethodPut, "/api/contacts/1", token, update)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Walker", decode[contactResponse](t, w).LastName)

	w = api.do(http.MethodDelete, "/api/contacts/1", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(http.MethodDelete, "/api/contacts/1", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"Not found!"}`, w.Body.String())

	w = api.do(http.MethodGet, "/api/contacts/abc", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestContactsAreIsolatedBetweenUsers(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signupAndLogin("alice@example.com").AccessToken
	bob := api.signupAndLogin("bob@example.com").AccessToken

	w := api.do(http.MethodPost, "/api/contacts", alice, validContact("Secret", "1990-01-01"))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[contactResponse](t, w).ID

	w = api.do(http.MethodGet, "/api/contacts/"+strconv.FormatInt(id, 10), bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContactValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.signupAndLogin("dave@example.com").AccessToken

	bad := validContact("Jo", "1990-13-01")
	bad["phone"] = "call me maybe"
	w := api.do(http.MethodPost, "/api/contacts", token, bad)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Detail []fieldError `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	fields := map[string]bool{}
	for _, fe := range body.Detail {
		fields[fe.Field] = true
	}
	assert.True(t, fields["first_name"])
	assert.True(t, fields["phone"])
	assert.True(t, fields["birthday"])
}

func TestContactRoutesAreRateLimited(t *testing.T) {
	api := newTestAPI(t)
	token := api.signupAndLogin("erin@example.com").AccessToken

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/contacts", token, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/contacts", token, nil).Code)
	w := api.do(http.MethodGet, "/api/contacts", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"detail":"Too many requests"}`, w.Body.String())
}

func TestAvatarUpload(t *testing.T) {
	api := newTestAPI(t)
	token := api.signupAndLogin("frank@example.com").AccessToken

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "me.gif")
	require.NoError(t, err)
	_, err = part.Write([]byte("GIF89a\x01\x00\x01\x00"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPatch, "/api/users/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	user := decode[userResponse](t, w)
	require.NotNil(t, user.Avatar)
	assert.True(t, strings.HasPrefix(*user.Avatar, "http://objects.test/avatars/"))
	assert.True(t, strings.HasSuffix(*user.Avatar, ".gif"))
}

func TestHealthCheckers(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/healthchecker", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	api.dbErr = errors.New("connection refused")
	w = api.do(http.MethodGet, "/api/healthchecker", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Error connecting to the database"}`, w.Body.String())
	w = api.do(http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
