package middleware

import (
	"strings"

	"github.com/AzielCF/az-publish/core/security"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/gofiber/fiber/v2"
)

// SessionLocal is the fiber locals key holding the domain.Session.
const SessionLocal = "session"

// Session authenticates the bearer token and attaches a domain.Session to the
// request's user context. The websocket upgrade cannot carry headers from a
// browser, so a "token" query parameter is accepted as well.
func Session(tokens *security.TokenService, settings domain.PublishSettings) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "missing authorization header"})
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "invalid or expired token"})
		}

		session := domain.Session{UserID: claims.Subject, Settings: settings}
		c.Locals(SessionLocal, session)
		c.SetUserContext(domain.WithSession(c.UserContext(), session))
		return c.Next()
	}
}

// SessionFrom returns the session stored by Session. It also works after a
// websocket upgrade, where only locals survive.
func SessionFrom(c *fiber.Ctx) (domain.Session, bool) {
	s, ok := c.Locals(SessionLocal).(domain.Session)
	return s, ok && s.UserID != ""
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
