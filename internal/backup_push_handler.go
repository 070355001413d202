package internal

import (
	"context"

	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal/monitor"
	"github.com/walguard/walguard/internal/pgbackrest"
	"github.com/walguard/walguard/internal/postgres"
)

const (
	TriggeredByScheduled = "scheduled"
	TriggeredByForced    = "forced"
)

// HandleBackupPush is the scheduled (cron-invoked) and operator-forced
// backup path. It shares the WAL monitor's success bookkeeping but applies
// its own gate: a scheduled run that observed almost no WAL growth since
// the last backup is suppressed, so idle databases do not pile up
// near-empty backups. The gate is a policy of this path only, the WAL
// monitor's evaluator never consults it.
func HandleBackupPush(ctx context.Context, requestedType pgbackrest.BackupType, force bool) error {
	queryRunner, err := ConfigureQueryRunner()
	if err != nil {
		return err
	}
	defer queryRunner.Close(context.Background())

	engine := ConfigureEngine()
	stateFile := GetSettingWithDefault(StateFileSetting)

	triggeredBy := TriggeredByScheduled
	if force {
		triggeredBy = TriggeredByForced
	} else {
		skip, err := shouldSkipScheduledBackup(ctx, queryRunner, stateFile)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
	}

	backupType := requestedType
	if backupType != pgbackrest.FullBackup {
		hasBase, err := engine.HasBaseBackup(ctx)
		if err != nil {
			return err
		}
		if !hasBase {
			tracelog.InfoLogger.Printf("No base backup exists yet, promoting %s backup to full", requestedType)
			backupType = pgbackrest.FullBackup
		}
	}

	if err := engine.Backup(ctx, backupType); err != nil {
		return err
	}

	controller, _, err := ConfigureController(queryRunner)
	if err != nil {
		return err
	}
	return controller.RecordSuccessfulBackup(ctx, backupType, triggeredBy)
}

func shouldSkipScheduledBackup(ctx context.Context, db postgres.LsnSource, stateFile string) (bool, error) {
	minGrowth, err := GetSizeSetting(MinWalGrowthSetting)
	if err != nil {
		return false, err
	}

	state := monitor.LoadState(stateFile)
	if state.LastBackupLSN == "" {
		// no backup on record yet, nothing to compare against
		return false, nil
	}

	currentLSN, err := db.CurrentWalLsn(ctx)
	if err != nil {
		tracelog.WarningLogger.Printf("Failed to read WAL position for the growth gate, proceeding with backup: %v", err)
		return false, nil
	}

	growth := postgres.Delta(currentLSN, state.LastBackupLSN)
	if growth < minGrowth {
		tracelog.InfoLogger.Printf("Skipping scheduled backup: only %d bytes of WAL growth since last backup, minimum is %d",
			growth, minGrowth)
		return true, nil
	}
	return false, nil
}
