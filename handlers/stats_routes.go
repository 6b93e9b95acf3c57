// handlers/stats_routes.go
package handlers

import (
	"strconv"

	"reward-ledger/middleware"
	"reward-ledger/services"

	"github.com/gofiber/fiber/v2"
)

type StatsDeps struct {
	Aggregator   *services.Aggregator
	Directory    *services.IdentityDirectory
	Snapshots    *services.SnapshotService
	DefaultLimit int
}

func SetupStatsRoutes(app *fiber.App, deps StatsDeps) {
	app.Get("/stats/me", middleware.ActorContextMiddleware(), func(c *fiber.Ctx) error {
		return actorStats(c, deps, middleware.ActorID(c))
	})

	app.Get("/stats/global", func(c *fiber.Ctx) error {
		total, err := deps.Aggregator.GlobalTotal(c.UserContext())
		if err != nil {
			return storeFailure(c, err)
		}
		breakdown, err := deps.Aggregator.TierBreakdown(c.UserContext())
		if err != nil {
			return storeFailure(c, err)
		}
		if breakdown == nil {
			breakdown = []services.ActorTierRow{}
		}
		return c.JSON(fiber.Map{
			"global_total": total,
			"actors":       breakdown,
		})
	})

	app.Get("/stats/:actor_id", func(c *fiber.Ctx) error {
		return actorStats(c, deps, c.Params("actor_id"))
	})

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit := deps.DefaultLimit
		if raw := c.Query("limit"); raw != "" {
			l, err := strconv.Atoi(raw)
			if err != nil || l <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit parameter"})
			}
			limit = l
		}
		rows, err := deps.Aggregator.Leaderboard(c.UserContext(), limit)
		if err != nil {
			return storeFailure(c, err)
		}
		if rows == nil {
			rows = []services.LeaderboardRow{}
		}
		return c.JSON(rows)
	})

	app.Get("/leaderboard/snapshots/latest", func(c *fiber.Ctx) error {
		snap, err := deps.Snapshots.Latest(c.UserContext())
		if err != nil {
			return storeFailure(c, err)
		}
		if snap == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_snapshot"})
		}
		return c.JSON(snap)
	})
}

func actorStats(c *fiber.Ctx, deps StatsDeps, actorID string) error {
	summary, err := deps.Aggregator.ActorSummary(c.UserContext(), actorID)
	if err != nil {
		return storeFailure(c, err)
	}
	if !summary.HasHistory() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_history", "actor_id": actorID})
	}

	displayName := actorID
	profile, err := deps.Directory.Lookup(c.UserContext(), actorID)
	if err != nil {
		return storeFailure(c, err)
	}
	if profile != nil {
		displayName = profile.Handle()
	}

	return c.JSON(fiber.Map{
		"actor_id":            summary.ActorID,
		"display_name":        displayName,
		"credited_total":      summary.CreditedTotal,
		"credited_count":      summary.CreditedCount,
		"counts_by_tier":      summary.CountByTier,
		"received_gift_total": summary.ReceivedGiftTotal,
		"gifted_away_total":   summary.GiftedAwayTotal,
		"gifted_away_count":   summary.GiftedAwayCount,
	})
}
