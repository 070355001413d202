package walguard

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal"
	"github.com/walguard/walguard/internal/pgbackrest"
)

const (
	BackupPushShortDescription = "Makes a backup and uploads it to remote storage"
	TypeFlag                   = "type"
	ForceFlag                  = "force"
	ForceShorthand             = "f"
)

var (
	backupPushCmd = &cobra.Command{
		Use:   "backup-push",
		Short: BackupPushShortDescription,
		Long: "Runs a pgbackrest backup outside the WAL monitor loop, for cron schedules " +
			"or operators. Unless --force is given, the backup is skipped when WAL growth " +
			"since the last backup is below " + internal.MinWalGrowthSetting + ".",
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			backupType, err := pgbackrest.ParseBackupType(backupTypeName)
			tracelog.ErrorLogger.FatalOnError(err)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = internal.HandleBackupPush(ctx, backupType, forceBackup)
			tracelog.ErrorLogger.FatalOnError(err)
		},
	}
	backupTypeName = string(pgbackrest.IncrementalBackup)
	forceBackup    = false
)

func init() {
	Cmd.AddCommand(backupPushCmd)

	backupPushCmd.Flags().StringVar(&backupTypeName, TypeFlag, string(pgbackrest.IncrementalBackup),
		"Backup type: full, incr or diff")
	backupPushCmd.Flags().BoolVarP(&forceBackup, ForceFlag, ForceShorthand, false,
		"Back up even if little WAL accumulated since the last backup")
}
