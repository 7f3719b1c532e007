package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"channel-manager/core/config"
	"channel-manager/core/database"
	"channel-manager/core/loader"
	"channel-manager/core/logger"
	"channel-manager/core/middleware/auth"
	"channel-manager/core/middleware/rayid"
	"channel-manager/core/storage"

	"channel-manager/feature/channel"
	"channel-manager/feature/channel/connectors/sandbox"
	"channel-manager/feature/channel/models"

	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// @title Channel Manager API
// @version 1.0
// @description API for syncing hotel inventory, rates, and bookings with OTA channels.
// @host localhost:8080
// @BasePath /

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the channel manager server",
	Long:  `Starts the HTTP server, the sync orchestrator, and all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Connect to Database
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logg.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := db.AutoMigrate(models.All()...); err != nil {
			logg.Fatal("Failed to migrate database schema", zap.Error(err))
		}

		// 4. Initialize Storage (sync payload archive)
		store, err := storage.NewClient(cfg.Storage)
		if err != nil {
			logg.Fatal("Failed to create storage client", zap.Error(err))
		}
		if err := ensureBucket(store, cfg.Storage); err != nil {
			// The archive is best-effort; sync runs proceed without it.
			logg.Warn("Payload archive bucket unavailable", zap.Error(err))
		}

		// 5. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// 6. Connector registry and feature wiring
		connectors := channel.ConnectorSet{
			"sandbox": sandbox.New("sandbox"),
		}
		feat := channel.NewFeature(db, logg, store, cfg.Storage.Bucket, connectors, channel.OrchestratorConfig{
			DefaultInterval: time.Duration(cfg.Sync.IntervalMinutes) * time.Minute,
			HorizonDays:     cfg.Sync.HorizonDays,
			RetryAttempts:   cfg.Sync.RetryAttempts,
			RetryBackoff:    time.Duration(cfg.Sync.RetryBackoffMillis) * time.Millisecond,
			MaxFailures:     cfg.Sync.MaxFailures,
		})

		mgr := loader.NewManager()
		mgr.Register(feat)

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 3. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 7. Load Features
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 8. Start scheduled sync loops for active channels
		if err := feat.Service().Orchestrator.Start(context.Background()); err != nil {
			logg.Fatal("Failed to start sync orchestrator", zap.Error(err))
		}

		// 9. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 10. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		feat.Service().Orchestrator.Stop()
		_ = app.Shutdown()
	},
}

// ensureBucket creates the payload archive bucket if it does not exist yet.
func ensureBucket(store storage.Client, cfg storage.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := store.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return store.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region})
}

func init() {
	RootCmd.AddCommand(startCmd)
}
