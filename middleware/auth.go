// middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
	HeaderActorTag  = "X-Actor-Tag"

	LocalActorID   = "actor_id"
	LocalActorName = "actor_name"
	LocalActorTag  = "actor_tag"
)

// ActorContextMiddleware extracts the acting identity forwarded by the gateway.
// Requests without X-Actor-ID are rejected.
func ActorContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID := strings.TrimSpace(c.Get(HeaderActorID))
		if actorID == "" {
			logrus.WithField("path", c.Path()).Warn("❌ [ACTOR_CTX] X-Actor-ID required but missing")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Actor-ID: request must come through gateway with actor context",
			})
		}

		c.Locals(LocalActorID, actorID)
		c.Locals(LocalActorName, strings.TrimSpace(c.Get(HeaderActorName)))
		c.Locals(LocalActorTag, strings.TrimSpace(c.Get(HeaderActorTag)))
		return c.Next()
	}
}

// ActorID returns the actor id set by ActorContextMiddleware.
func ActorID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalActorID).(string)
	return id
}

func ActorName(c *fiber.Ctx) string {
	name, _ := c.Locals(LocalActorName).(string)
	return name
}

func ActorTag(c *fiber.Ctx) string {
	tag, _ := c.Locals(LocalActorTag).(string)
	return tag
}
