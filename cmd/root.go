package cmd

import (
	"fmt"
	"os"

	"channel-manager/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "channel-manager",
	Short: "Channel Manager Service",
	Long: `Channel Manager keeps hotel inventory, rates, and restrictions in sync
with online travel agencies and pulls their bookings back into one ledger.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format with a debug level config so CLI users get readable
		// ISO8601 timestamps rather than the production epoch encoding.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
