// handlers/action_routes.go
package handlers

import (
	"reward-ledger/middleware"
	"reward-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type actionBody struct {
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`
	TargetTag  string `json:"target_tag"`
}

func SetupActionRoutes(app *fiber.App, actions *services.ActionService, ledger *services.Ledger) {
	actor := middleware.ActorContextMiddleware()

	// Cast: optional body {target_id, target_name, target_tag} gifts the reward.
	app.Post("/actions", actor, func(c *fiber.Ctx) error {
		var body actionBody
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "invalid_request",
					"cause": err.Error(),
				})
			}
		}

		out := actions.Perform(c.UserContext(), services.ActionRequest{
			RequestID:         requestID(c),
			ActorID:           middleware.ActorID(c),
			ActorDisplayName:  middleware.ActorName(c),
			ActorDisplayTag:   middleware.ActorTag(c),
			TargetID:          body.TargetID,
			TargetDisplayName: body.TargetName,
			TargetDisplayTag:  body.TargetTag,
		})

		switch out.Kind {
		case services.OutcomeRecorded:
			return c.JSON(fiber.Map{
				"tier":        out.Reward.Tier,
				"magnitude":   out.Reward.Magnitude,
				"credited_to": out.CreditedTo,
				"gift":        out.Record.IsGift,
				"occurred_at": out.Record.Time(),
			})
		case services.OutcomeCooldown:
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":                      "cooldown",
				"cooldown_remaining_seconds": out.RemainingSeconds(),
			})
		case services.OutcomeInvalidGift:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_gift_self"})
		case services.OutcomeInvalidRequest:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
		default:
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "transient_error"})
		}
	})

	// Advisory only; the claim itself re-checks atomically.
	app.Get("/actions/cooldown", actor, func(c *fiber.Ctx) error {
		status, err := ledger.Status(c.UserContext(), middleware.ActorID(c))
		if err != nil {
			return storeFailure(c, err)
		}
		return c.JSON(fiber.Map{
			"ready":                      status.Ready,
			"never_acted":                status.LastActionAt == nil,
			"last_action_at":             status.LastActionAt,
			"cooldown_remaining_seconds": int64(status.Remaining.Seconds()),
		})
	})
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}

func storeFailure(c *fiber.Ctx, err error) error {
	logrus.WithError(err).WithField("path", c.Path()).Error("❌ store request failed")
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "transient_error"})
}
