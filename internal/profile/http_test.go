package profile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/account-portal/internal/accounts"
	"github.com/yourusername/account-portal/internal/auth"
	"github.com/yourusername/account-portal/internal/mail"
)

type nopTokens struct{}

func (nopTokens) Make(*accounts.Account) (string, error) { return "token", nil }
func (nopTokens) Check(*accounts.Account, string) bool   { return false }

type nopMailer struct{}

func (nopMailer) Send(context.Context, mail.Message) error { return nil }

type recordingRefresher struct {
	calls []*accounts.Account
	err   error
}

func (r *recordingRefresher) RefreshAuth(c *gin.Context, account *accounts.Account) error {
	r.calls = append(r.calls, account)
	return r.err
}

type fixture struct {
	router    *gin.Engine
	svc       *accounts.Service
	repo      *accounts.MemoryRepository
	refresher *recordingRefresher
	current   *accounts.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := accounts.NewMemoryRepository()
	svc := accounts.NewService(repo, nopTokens{}, nopMailer{}, accounts.Options{
		HashCost: bcrypt.MinCost,
		Logger:   log.New(io.Discard, "", 0),
		Now:      func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.FixedZone("JST", 9*60*60)) },
	})
	f := &fixture{router: gin.New(), svc: svc, repo: repo, refresher: &recordingRefresher{}}

	for _, name := range []string{"alice", "bob"} {
		account, err := svc.Register(context.Background(), accounts.RegisterInput{
			Username:        name,
			Email:           name + "@example.com",
			Password:        "Secret12!",
			ConfirmPassword: "Secret12!",
		})
		require.NoError(t, err)
		if name == "alice" {
			f.current = account
		}
	}

	// 認証ミドルウェアの代わりに、ストアから読み直したアカウントを載せる
	loadAccount := func(c *gin.Context) {
		if f.current == nil {
			c.Next()
			return
		}
		account, err := repo.GetByID(c.Request.Context(), f.current.ID)
		require.NoError(t, err)
		c.Set(auth.ContextAccountKey, account)
		c.Next()
	}
	opts := HandlerOptions{Logger: log.New(io.Discard, "", 0)}
	group := f.router.Group("/api/profile", loadAccount)
	group.GET("", GetHandler())
	group.PUT("", UpdateHandler(svc, opts))
	group.PUT("/username", UsernameHandler(svc, opts))
	group.PUT("/password", PasswordHandler(svc, f.refresher, opts))
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return rec.Code, payload
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t)

	status, payload := f.do(t, http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{
		"username":    "alice",
		"email":       "alice@example.com",
		"date_joined": "2026-02-02T19:05:06Z",
	}, payload)
}

func TestHandlersRequireAccount(t *testing.T) {
	f := newFixture(t)
	f.current = nil

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/profile"},
		{http.MethodPut, "/api/profile"},
		{http.MethodPut, "/api/profile/username"},
		{http.MethodPut, "/api/profile/password"},
	} {
		status, payload := f.do(t, tc.method, tc.path, `{}`)
		assert.Equal(t, http.StatusUnauthorized, status, tc.path)
		assert.Equal(t, "UNAUTHORIZED", payload["code"])
	}
}

func TestUpdateProfile(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		code     string
		username string
		email    string
	}{
		{name: "email only", body: `{"email":"new@example.com"}`, status: http.StatusOK, username: "alice", email: "new@example.com"},
		{name: "clear email", body: `{"email":""}`, status: http.StatusOK, username: "alice", email: ""},
		{name: "nothing supplied", body: `{}`, status: http.StatusOK, username: "alice", email: "alice@example.com"},
		{name: "keep own username", body: `{"username":"alice"}`, status: http.StatusOK, username: "alice", email: "alice@example.com"},
		{name: "rename", body: `{"username":"alicia","email":"a@example.com"}`, status: http.StatusOK, username: "alicia", email: "a@example.com"},
		{name: "short username", body: `{"username":"al","email":"x@example.com"}`, status: http.StatusBadRequest, code: accounts.CodeUsernameTooShort, username: "alice", email: "alice@example.com"},
		{name: "taken username", body: `{"username":"bob","email":"x@example.com"}`, status: http.StatusBadRequest, code: accounts.CodeUsernameTaken, username: "alice", email: "alice@example.com"},
		{name: "unknown field", body: `{"is_active":false}`, status: http.StatusBadRequest, code: "INVALID_INPUT", username: "alice", email: "alice@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			status, payload := f.do(t, http.MethodPut, "/api/profile", tt.body)
			assert.Equal(t, tt.status, status)
			if tt.code != "" {
				assert.Equal(t, tt.code, payload["code"])
			} else {
				assert.Equal(t, map[string]any{"username": tt.username, "email": tt.email}, payload["user"])
			}

			stored, err := f.repo.GetByID(context.Background(), f.current.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.username, stored.Username, "failed updates write nothing")
			assert.Equal(t, tt.email, stored.Email)
		})
	}
}

func TestUpdateUsername(t *testing.T) {
	f := newFixture(t)

	status, payload := f.do(t, http.MethodPut, "/api/profile/username", `{"username":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, accounts.CodeUsernameTaken, payload["code"])

	status, payload = f.do(t, http.MethodPut, "/api/profile/username", `{"username":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, accounts.CodeUsernameRequired, payload["code"])

	status, payload = f.do(t, http.MethodPut, "/api/profile/username", `{"username":"alicia"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alicia", payload["username"])

	_, err := f.repo.GetByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestUpdatePassword(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing field", `{"currentPassword":"Secret12!","newPassword":"Another1!"}`, http.StatusBadRequest, accounts.CodeRequiredFields},
		{"wrong current", `{"currentPassword":"Wrong123!","newPassword":"Another1!","confirmPassword":"Another1!"}`, http.StatusBadRequest, accounts.CodeCurrentPasswordIncorrect},
		{"mismatch", `{"currentPassword":"Secret12!","newPassword":"Another1!","confirmPassword":"Another2!"}`, http.StatusBadRequest, accounts.CodePasswordMismatch},
		{"too short", `{"currentPassword":"Secret12!","newPassword":"Ab1!","confirmPassword":"Ab1!"}`, http.StatusBadRequest, accounts.CodePasswordTooShort},
		{"no uppercase", `{"currentPassword":"Secret12!","newPassword":"another1!","confirmPassword":"another1!"}`, http.StatusBadRequest, accounts.CodePasswordNoUppercase},
		{"no symbol", `{"currentPassword":"Secret12!","newPassword":"Another12","confirmPassword":"Another12"}`, http.StatusBadRequest, accounts.CodePasswordNoSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			status, payload := f.do(t, http.MethodPut, "/api/profile/password", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, payload["code"])
			assert.Empty(t, f.refresher.calls)
		})
	}
}

func TestUpdatePasswordRefreshesSession(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPut, "/api/profile/password",
		`{"currentPassword":"Secret12!","newPassword":"Another1!","confirmPassword":"Another1!"}`)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, f.refresher.calls, 1)

	stored, err := f.repo.GetByID(context.Background(), f.current.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.PasswordHash, f.refresher.calls[0].PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Another1!")))

	_, err = f.svc.Authenticate(context.Background(), "alice", "Secret12!", "")
	assert.Error(t, err, "old password no longer works")
	_, err = f.svc.Authenticate(context.Background(), "alice", "Another1!", "")
	assert.NoError(t, err)
}

func TestUpdatePasswordRefreshFailure(t *testing.T) {
	f := newFixture(t)
	f.refresher.err = errors.New("session store down")

	status, payload := f.do(t, http.MethodPut, "/api/profile/password",
		`{"currentPassword":"Secret12!","newPassword":"Another1!","confirmPassword":"Another1!"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", payload["code"])
}
