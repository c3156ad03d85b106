package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/repairdesk/repairdesk/internal/api/dto"
	"github.com/repairdesk/repairdesk/internal/service"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// UsersHandler exposes auth endpoints.
type UsersHandler struct {
	auth *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": authPayload(result)})
}

// Login handles POST /api/auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authPayload(result)})
}

func authPayload(result *service.AuthResult) fiber.Map {
	return fiber.Map{
		"user": dto.NewUserSummary(result.User),
		"auth": dto.NewAuthResponse(result.Token, result.ExpiresAt),
	}
}
