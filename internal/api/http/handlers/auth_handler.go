package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/deskbot/internal/api/dto"
	"github.com/spec-kit/deskbot/internal/service"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// AuthHandler issues operator tokens.
type AuthHandler struct {
	operators *service.OperatorService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(operators *service.OperatorService) *AuthHandler {
	return &AuthHandler{operators: operators}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" || req.Password == "" {
		return apperrors.NewValidationError("name and password required", nil)
	}

	token, meta, err := h.operators.Login(c.UserContext(), req.Name, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"data": dto.AuthResponse{Token: token, ExpiresAt: meta.ExpiresAt},
	})
}
