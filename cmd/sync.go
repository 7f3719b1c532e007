package cmd

import (
	"context"
	"fmt"
	"time"

	"channel-manager/core/config"
	"channel-manager/core/database"
	"channel-manager/core/logger"
	"channel-manager/core/storage"

	"channel-manager/feature/channel"
	"channel-manager/feature/channel/connectors/sandbox"
	"channel-manager/feature/channel/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// syncCmd runs one sync cycle for a single channel and prints the report.
var syncCmd = &cobra.Command{
	Use:   "sync [channel-id]",
	Short: "Run one sync cycle for a channel",
	Long: `Runs a full push-then-pull sync cycle for the given channel and prints
the per-batch outcome. Useful for debugging a channel without the server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		logg, err := logger.New(&logger.Config{Level: "info", Format: "console"})
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		defer logg.Sync()

		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		if err := db.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("migrate database schema: %w", err)
		}

		store, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}

		connectors := channel.ConnectorSet{
			"sandbox": sandbox.New("sandbox"),
		}
		svc := channel.NewService(db, logg, store, cfg.Storage.Bucket, connectors, channel.OrchestratorConfig{
			HorizonDays:   cfg.Sync.HorizonDays,
			RetryAttempts: cfg.Sync.RetryAttempts,
			RetryBackoff:  time.Duration(cfg.Sync.RetryBackoffMillis) * time.Millisecond,
			MaxFailures:   cfg.Sync.MaxFailures,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		report, err := svc.Orchestrator.TriggerSync(ctx, args[0])
		if err != nil {
			logg.Error("Sync failed", zap.String("channel_id", args[0]), zap.Error(err))
			return err
		}

		fmt.Printf("Channel %s: %s\n", report.ChannelID, report.Status())
		for _, b := range report.Batches {
			fmt.Printf("  %-16s %-4s %-8s processed=%d successful=%d failed=%d",
				b.Type, b.Direction, b.Status, b.Processed, b.Successful, b.Failed)
			if b.Error != "" {
				fmt.Printf(" error=%q", b.Error)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(syncCmd)
}
