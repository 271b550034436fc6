package middlewares

import (
	t_token "hls_transcode_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name，websocket 無法帶 header 時使用
	QueryToken = "auth"

	//TokenSubject get subject form token, set c.locals name
	TokenSubject = "subject"
	//TokenRole get role form token, set c.locals name
	TokenRole = "role"
)

// JWTMiddleware validates JWT in the Authorization header or auth query
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr, err := t_token.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			tokenStr = c.Query(QueryToken)
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := t_token.ParseJWTWrapper(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(TokenSubject, claims.Subject)
		c.Locals(TokenRole, claims.Role)
		return c.Next()
	}
}

// RequireRole 必須在 JWTMiddleware 之後
func RequireRole(roles ...t_token.RoleType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(TokenRole).(string)
		for _, r := range roles {
			if role == string(r) {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Permission denied",
		})
	}
}
