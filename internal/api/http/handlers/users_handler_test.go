package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/account-service/internal/api/http"
	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
)

type memoryUserRepo struct {
	users  map[int64]*domain.User
	nextID int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]*domain.User), nextID: 1}
}

func (r *memoryUserRepo) Create(_ context.Context, user *domain.User) error {
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	user.ID = r.nextID
	r.nextID++
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memoryUserRepo) List(_ context.Context, offset, limit int) ([]domain.User, error) {
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *memoryUserRepo) Update(_ context.Context, id int64, patch repository.UserPatch) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	clone := *user
	return &clone, nil
}

func newTestApp(t *testing.T) (*fiber.App, *memoryUserRepo) {
	t.Helper()

	repo := newMemoryUserRepo()
	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:     "test-secret",
		TokenTTLHours: 24,
		BcryptCost:    4,
		AdminEmail:    "root@example.com",
	}}

	userService := service.NewUserService(cfg, service.UserDependencies{UserRepo: repo})
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLHours)
	authMiddleware := auth.NewAuthMiddleware(tokens, repo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Users:          handlers.NewUsersHandler(userService, tokens),
		AuthMiddleware: authMiddleware,
		Health:         handlers.NewHealthHandler("test", "dev", nil, nil),
	})
	return app, repo
}

func doJSON(t *testing.T, app *fiber.App, method, path, token, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Cookie", auth.TokenCookie+"="+token)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	payload := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload))
	}
	return resp.StatusCode, payload
}

func registerAndLogin(t *testing.T, app *fiber.App, fullname, email, password string) string {
	t.Helper()

	status, body := doJSON(t, app, http.MethodPost, "/api/users", "",
		`{"fullname":"`+fullname+`","email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, status, "register failed: %v", body)

	authPayload, ok := body["auth"].(map[string]any)
	require.True(t, ok, "missing auth payload")
	token, _ := authPayload["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := doJSON(t, app, http.MethodPost, "/api/users", "",
		`{"fullname":"Alice","email":"a@x.com","password":"pw123"}`)
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, true, body["success"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", user["email"])
	assert.Equal(t, "USER", user["role"])
	_, hasPassword := user["password"]
	assert.False(t, hasPassword, "password must never appear in responses")

	// duplicate registration conflicts
	status, body = doJSON(t, app, http.MethodPost, "/api/users", "",
		`{"fullname":"Alice","email":"a@x.com","password":"pw123"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "email already registered", body["error"])
}

func TestRegisterEndpoint_AdminBootstrap(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := doJSON(t, app, http.MethodPost, "/api/users", "",
		`{"fullname":"Root","email":"root@example.com","password":"pw123"}`)
	require.Equal(t, http.StatusCreated, status)

	user := body["user"].(map[string]any)
	assert.Equal(t, "ADMIN", user["role"])
}

func TestLoginEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	registerAndLogin(t, app, "Alice", "a@x.com", "pw123")

	status, body := doJSON(t, app, http.MethodPost, "/api/users/login", "",
		`{"email":"a@x.com","password":"pw123"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = doJSON(t, app, http.MethodPost, "/api/users/login", "",
		`{"email":"a@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid credentials", body["error"])

	status, body = doJSON(t, app, http.MethodPost, "/api/users/login", "",
		`{"email":"nobody@x.com","password":"pw123"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestGetUserEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	aliceToken := registerAndLogin(t, app, "Alice", "a@x.com", "pw123")
	registerAndLogin(t, app, "Bob", "b@x.com", "pw456")
	adminToken := registerAndLogin(t, app, "Root", "root@example.com", "pw789")

	// me resolves to the caller
	status, body := doJSON(t, app, http.MethodGet, "/api/users/me", aliceToken, "")
	require.Equal(t, http.StatusOK, status)
	user := body["user"].(map[string]any)
	assert.Equal(t, "a@x.com", user["email"])

	// regular user cannot read someone else
	status, _ = doJSON(t, app, http.MethodGet, "/api/users/2", aliceToken, "")
	assert.Equal(t, http.StatusForbidden, status)

	// admin can
	status, body = doJSON(t, app, http.MethodGet, "/api/users/2", adminToken, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "b@x.com", body["user"].(map[string]any)["email"])

	// unauthenticated request bounces
	status, body = doJSON(t, app, http.MethodGet, "/api/users/1", "", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not authorized", body["error"])
}

func TestListUsersEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	aliceToken := registerAndLogin(t, app, "Alice", "a@x.com", "pw123")
	adminToken := registerAndLogin(t, app, "Root", "root@example.com", "pw789")

	status, _ := doJSON(t, app, http.MethodGet, "/api/users", aliceToken, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body := doJSON(t, app, http.MethodGet, "/api/users?page=0", adminToken, "")
	require.Equal(t, http.StatusOK, status)
	users := body["users"].([]any)
	require.Len(t, users, 2)
	for _, raw := range users {
		_, hasPassword := raw.(map[string]any)["password"]
		assert.False(t, hasPassword)
	}
}

func TestBlockUserEndpoint(t *testing.T) {
	app, repo := newTestApp(t)
	registerAndLogin(t, app, "Alice", "a@x.com", "pw123")
	adminToken := registerAndLogin(t, app, "Root", "root@example.com", "pw789")

	status, body := doJSON(t, app, http.MethodDelete, "/api/users/1", adminToken, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, domain.StatusBlocked, repo.users[1].Status)

	// a blocked account can no longer log in
	status, body = doJSON(t, app, http.MethodPost, "/api/users/login", "",
		`{"email":"a@x.com","password":"pw123"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "account blocked", body["error"])
}

func TestChangeRoleEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	aliceToken := registerAndLogin(t, app, "Alice", "a@x.com", "pw123")
	adminToken := registerAndLogin(t, app, "Root", "root@example.com", "pw789")

	status, _ := doJSON(t, app, http.MethodPatch, "/api/users/1/role", aliceToken, `{"role":"ADMIN"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := doJSON(t, app, http.MethodPatch, "/api/users/999/role", adminToken, `{"role":"NOT_A_ROLE"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown role", body["error"])

	status, body = doJSON(t, app, http.MethodPatch, "/api/users/1/role", adminToken, `{"role":"ADMIN"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ADMIN", body["user"].(map[string]any)["role"])
}
