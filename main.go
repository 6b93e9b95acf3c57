// main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"reward-ledger/config"
	"reward-ledger/handlers"
	"reward-ledger/middleware"
	"reward-ledger/services"
	"reward-ledger/utils"
	"reward-ledger/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logrus.SetLevel(cfg.LogrusLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := utils.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	if err := utils.MigrateDatabase(db); err != nil {
		logrus.WithError(err).Fatal("failed to migrate database")
	}

	clock := clockwork.NewRealClock()

	rewards, err := services.NewRewardGenerator(nil, services.DefaultTierBands)
	if err != nil {
		logrus.WithError(err).Fatal("invalid tier bands")
	}
	ledger := services.NewLedger(db, clock, cfg.ActionCooldown)
	directory := services.NewIdentityDirectory(db)
	aggregator := services.NewAggregator(db, rewards.Bands())
	actions := services.NewActionService(rewards, ledger, directory, cfg.StoreTimeout)

	var uploader services.SnapshotUploader
	if cfg.SnapshotUploadsEnabled() {
		r2, err := utils.NewR2Uploader(ctx, cfg.CloudflareAccount, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.SnapshotBucket)
		if err != nil {
			logrus.WithError(err).Fatal("failed to initialize R2 client")
		}
		uploader = r2
	}
	snapshots := services.NewSnapshotService(db, rewards.Bands(), uploader, clock, cfg.LeaderboardLimit)

	if cfg.SnapshotInterval > 0 {
		sched, err := snapshots.StartSnapshotScheduler(cfg.SnapshotInterval, 4*cfg.StoreTimeout)
		if err != nil {
			logrus.WithError(err).Fatal("failed to start snapshot scheduler")
		}
		defer func() { _ = sched.Shutdown() }()
	}

	if cfg.ProfileSyncURL != "" {
		syncWorker, err := workers.NewProfileSyncWorker(
			directory,
			cfg.ProfileSyncURL,
			cfg.ProfileSyncToken,
			cfg.ProfileSyncInterval,
			utils.NewHTTPClient(cfg.HTTPClientTimeout),
		)
		if err != nil {
			logrus.WithError(err).Fatal("failed to create profile sync worker")
		}
		syncWorker.Start(ctx)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Actor-ID, X-Actor-Name, X-Actor-Tag",
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
		MaxAge:        86400,
	}))

	// 🔐 Only gateway requests past this point
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	handlers.SetupActionRoutes(app, actions, ledger)
	handlers.SetupStatsRoutes(app, handlers.StatsDeps{
		Aggregator:   aggregator,
		Directory:    directory,
		Snapshots:    snapshots,
		DefaultLimit: cfg.LeaderboardLimit,
	})

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			logrus.WithError(err).Error("Server error")
			stop()
		}
	}()

	logrus.WithFields(logrus.Fields{
		"addr":     cfg.ListenAddr,
		"cooldown": cfg.ActionCooldown,
		"driver":   cfg.DatabaseDriver,
	}).Info("✅ Reward ledger running")
	logrus.Infof("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	logrus.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Warn("server shutdown incomplete")
	}
}
