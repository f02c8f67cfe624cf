package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"trailrun-backend/internal/bulk"
	"trailrun-backend/internal/metadata"
)

const operatorKey = "operator"

// Middleware returns a Fiber middleware that validates JWT tokens
// and sets the Operator on the request.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return bulk.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return bulk.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return bulk.UnauthorizedError("Invalid or expired token")
		}

		c.Locals(operatorKey, &metadata.Operator{
			ID:        claims.Subject,
			SessionID: sessionOf(claims),
			Roles:     claims.Roles,
		})

		return c.Next()
	}
}

// RequireRole rejects operators holding none of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op := GetOperator(c)
		if op == nil {
			return bulk.UnauthorizedError("Missing auth token")
		}
		if !op.HasAnyRole(roles...) {
			return bulk.ForbiddenError("Bulk editing requires one of: " + strings.Join(roles, ", "))
		}
		return c.Next()
	}
}

// GetOperator extracts the Operator from a Fiber context.
func GetOperator(c *fiber.Ctx) *metadata.Operator {
	op, _ := c.Locals(operatorKey).(*metadata.Operator)
	return op
}
