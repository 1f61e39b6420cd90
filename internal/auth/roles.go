package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/deskbot/internal/domain"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// RequireOperator ensures the caller authenticated as an ops operator.
func RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.SubjectType != domain.SubjectTypeOperator {
			return apperrors.NewPermissionDenied("operator access required")
		}
		return c.Next()
	}
}
