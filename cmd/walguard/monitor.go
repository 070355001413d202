package walguard

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal"
)

const MonitorShortDescription = "Polls WAL growth and triggers incremental backups"

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: MonitorShortDescription,
	Long: "Polls the database's WAL position on a fixed interval, accumulates growth " +
		"since the last backup, and triggers a pgbackrest backup once the configured " +
		"threshold is crossed. A full backup is taken first if none exists.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		enabled, err := internal.GetBoolSettingDefault(internal.EnableWalMonitorSetting, true)
		tracelog.ErrorLogger.FatalOnError(err)
		if !enabled {
			tracelog.InfoLogger.Printf("%s is disabled, exiting", internal.EnableWalMonitorSetting)
			return
		}

		queryRunner, err := internal.ConfigureQueryRunner()
		tracelog.ErrorLogger.FatalOnError(err)
		defer queryRunner.Close(context.Background())

		controller, interval, err := internal.ConfigureController(queryRunner)
		tracelog.ErrorLogger.FatalOnError(err)

		// in-flight engine calls finish before the loop observes the signal
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = controller.Run(ctx, interval)
		tracelog.ErrorLogger.FatalOnError(err)
	},
}

func init() {
	Cmd.AddCommand(monitorCmd)
}
