package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// UsersHandler exposes account endpoints.
type UsersHandler struct {
	users  *service.UserService
	tokens *auth.TokenManager
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService, tokens *auth.TokenManager) *UsersHandler {
	return &UsersHandler{users: userService, tokens: tokens}
}

// Register handles POST /users.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	if req.Email == "" || req.Password == "" || req.Fullname == "" {
		return apperrors.NewBadRequest("fullname, email, password required")
	}

	user, err := h.users.Register(c.UserContext(), req.Fullname, req.Email, req.Password)
	if err != nil {
		return err
	}

	authPayload, err := h.issueToken(c, user.ID)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user":    dto.NewUserResponse(user),
		"auth":    authPayload,
	})
}

// Login handles POST /users/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewBadRequest("email and password required")
	}

	user, err := h.users.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	authPayload, err := h.issueToken(c, user.ID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    dto.NewUserResponse(user),
		"auth":    authPayload,
	})
}

// GetByID handles GET /users/:id, where `me` resolves to the caller.
func (h *UsersHandler) GetByID(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("not authorized")
	}

	targetID, err := parseTargetID(c, principal)
	if err != nil {
		return err
	}

	user, err := h.users.GetUserByID(c.UserContext(), principal, targetID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    dto.NewUserResponse(user),
	})
}

// List handles GET /users?page=N.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("not authorized")
	}

	page := c.QueryInt("page", 0)
	users, err := h.users.ListUsers(c.UserContext(), principal, page)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"users":   dto.NewUserResponses(users),
	})
}

// Block handles DELETE /users/:id.
func (h *UsersHandler) Block(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("not authorized")
	}

	targetID, err := parseTargetID(c, principal)
	if err != nil {
		return err
	}

	if err := h.users.BlockUser(c.UserContext(), principal, targetID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}

// ChangeRole handles PATCH /users/:id/role.
func (h *UsersHandler) ChangeRole(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("not authorized")
	}

	targetID, err := parseTargetID(c, principal)
	if err != nil {
		return err
	}

	var req dto.ChangeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}

	user, err := h.users.ChangeRole(c.UserContext(), principal, targetID, domain.Role(req.Role))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    dto.NewUserResponse(user),
	})
}

func (h *UsersHandler) issueToken(c *fiber.Ctx, userID int64) (dto.AuthResponse, error) {
	token, expiresAt, err := h.tokens.GenerateToken(userID)
	if err != nil {
		return dto.AuthResponse{}, apperrors.MapError(err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return dto.AuthResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// parseTargetID resolves the :id path parameter; the symbolic `me` maps to
// the caller's own id before any service call.
func parseTargetID(c *fiber.Ctx, principal *domain.User) (int64, error) {
	raw := c.Params("id")
	if raw == "me" {
		return principal.ID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewBadRequest("invalid user id")
	}
	return id, nil
}
