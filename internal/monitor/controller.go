package monitor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal/pgbackrest"
	"github.com/walguard/walguard/internal/postgres"
)

type phase int

const (
	phaseIdle phase = iota
	phaseAwaitingFullBackup
	phaseAwaitingIncrementalBackup
	phaseUpdatingState
	phaseFaulted
)

func (p phase) String() string {
	switch p {
	case phaseAwaitingFullBackup:
		return "AwaitingFullBackup"
	case phaseAwaitingIncrementalBackup:
		return "AwaitingIncrementalBackup"
	case phaseUpdatingState:
		return "UpdatingState"
	case phaseFaulted:
		return "Faulted"
	}
	return "Idle"
}

const (
	TriggeredByFull        = "full"
	TriggeredByIncremental = "incremental"
)

// Controller owns the monitor state file exclusively: one controller
// process per monitored database, no concurrent writers. Each tick reads
// the state, folds in the observed WAL position and persists the result,
// whether or not a backup fired.
type Controller struct {
	stateFile      string
	threshold      uint64
	commandTimeout time.Duration

	db       postgres.LsnSource
	engine   pgbackrest.Engine
	uploader Uploader

	phase phase
	now   func() time.Time
}

// setPhase traces controller transitions for post-hoc diagnosis.
func (controller *Controller) setPhase(next phase) {
	if controller.phase != next {
		tracelog.DebugLogger.Printf("Controller phase: %v -> %v", controller.phase, next)
		controller.phase = next
	}
}

func NewController(stateFile string, threshold uint64, commandTimeout time.Duration,
	db postgres.LsnSource, engine pgbackrest.Engine, uploader Uploader) *Controller {
	return &Controller{
		stateFile:      stateFile,
		threshold:      threshold,
		commandTimeout: commandTimeout,
		db:             db,
		engine:         engine,
		uploader:       uploader,
		now:            time.Now,
	}
}

// Run polls until ctx is cancelled. Each tick runs on its own context so a
// termination signal never kills an in-flight engine call: interrupting
// pgbackrest mid-backup can leave the repository needing a manual cleanup.
// State is persisted at the end of every tick, so exiting between ticks is
// always safe.
func (controller *Controller) Run(ctx context.Context, interval time.Duration) error {
	// the lock file lives next to the state file, which may not have a
	// directory yet on a fresh host
	if err := os.MkdirAll(filepath.Dir(controller.stateFile), 0755); err != nil {
		return errors.Wrapf(err, "failed to create state directory for %s", controller.stateFile)
	}

	lock := flock.New(controller.stateFile + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return errors.Wrapf(err, "failed to acquire monitor lock %s", lock.Path())
	}
	if !locked {
		return errors.Errorf("another monitor instance holds %s", lock.Path())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			tracelog.WarningLogger.Printf("Failed to release monitor lock: %v", err)
		}
	}()

	tracelog.InfoLogger.Printf("WAL monitor started: stanza '%s', threshold %d bytes, interval %v",
		controller.engine.Stanza(), controller.threshold, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tracelog.InfoLogger.Println("WAL monitor stopping")
			return nil
		case <-ticker.C:
		}

		tickCtx, cancel := postgres.ContextWithTimeout(context.Background(), controller.commandTimeout)
		controller.Tick(tickCtx)
		cancel()
	}
}

// Tick runs one poll cycle: observe the WAL position, account the growth,
// fire a backup if the threshold was crossed. A tick that cannot observe a
// position mutates nothing; the next tick retries from the same baseline.
func (controller *Controller) Tick(ctx context.Context) {
	if err := controller.db.Ping(ctx); err != nil {
		tracelog.InfoLogger.Printf("Database is not reachable, skipping tick: %v", err)
		return
	}

	currentLSN, err := controller.db.CurrentWalLsn(ctx)
	if err != nil {
		tracelog.WarningLogger.Printf("Failed to read current WAL position, skipping tick: %v", err)
		return
	}
	if currentLSN == "" {
		tracelog.WarningLogger.Println("Got empty WAL position, skipping tick")
		return
	}

	state := LoadState(controller.stateFile)
	decision, state := Evaluate(currentLSN, state, controller.threshold)
	tracelog.DebugLogger.Printf("Tick: position %s, accumulated growth %d/%d bytes, decision %v",
		currentLSN, state.AccumulatedGrowth, controller.threshold, decision)

	if decision == DecisionTrigger {
		state = controller.triggerBackup(ctx, currentLSN, state)
	}

	if err := SaveState(controller.stateFile, state); err != nil {
		tracelog.ErrorLogger.Printf("Failed to persist monitor state: %v", err)
	}
}

// triggerBackup runs the backup the evaluator asked for and returns the
// state to persist. On any failure the accumulated growth is carried over
// untouched, so a failed attempt only delays the backup until the next
// tick instead of discarding the bytes that warranted it.
func (controller *Controller) triggerBackup(ctx context.Context, currentLSN string, state MonitorState) MonitorState {
	hasBase, err := controller.engine.HasBaseBackup(ctx)
	if err != nil {
		controller.setPhase(phaseFaulted)
		tracelog.ErrorLogger.Printf("Failed to check for a base backup, keeping accumulated growth: %v", err)
		controller.setPhase(phaseIdle)
		return state
	}

	backupType := pgbackrest.IncrementalBackup
	triggeredBy := TriggeredByIncremental
	if hasBase {
		controller.setPhase(phaseAwaitingIncrementalBackup)
	} else {
		// an incremental backup has nothing to chain onto yet
		backupType = pgbackrest.FullBackup
		triggeredBy = TriggeredByFull
		controller.setPhase(phaseAwaitingFullBackup)
	}
	tracelog.InfoLogger.Printf("WAL growth threshold crossed (%d >= %d bytes), entering %v",
		state.AccumulatedGrowth, controller.threshold, controller.phase)

	if err := controller.engine.Backup(ctx, backupType); err != nil {
		controller.setPhase(phaseFaulted)
		tracelog.ErrorLogger.Printf("Triggered %s backup failed, keeping accumulated growth: %v", backupType, err)
		controller.setPhase(phaseIdle)
		return state
	}

	controller.setPhase(phaseUpdatingState)
	now := controller.now()
	state.LastBackupTime = &now
	state.LastBackupLSN = currentLSN
	state.AccumulatedGrowth = 0
	state.TriggeredBy = triggeredBy

	// The reset state must hit the disk before the upload hand-off: the
	// sync can run for minutes, and a crash during it must not leave a
	// threshold-sized counter that re-fires the backup on restart.
	if err := SaveState(controller.stateFile, state); err != nil {
		tracelog.ErrorLogger.Printf("Failed to persist monitor state: %v", err)
	}
	controller.setPhase(phaseIdle)

	controller.handOffUpload(ctx, string(backupType), triggeredBy, now)
	return state
}

// RecordSuccessfulBackup is the success path for backups taken outside the
// polling loop (scheduled or operator-forced): it performs the same state
// update and upload hand-off as a monitor-triggered backup.
func (controller *Controller) RecordSuccessfulBackup(ctx context.Context, backupType pgbackrest.BackupType, triggeredBy string) error {
	currentLSN, err := controller.db.CurrentWalLsn(ctx)
	if err != nil {
		tracelog.WarningLogger.Printf("Failed to read WAL position after backup: %v", err)
	}

	state := LoadState(controller.stateFile)
	now := controller.now()
	state.LastBackupTime = &now
	if currentLSN != "" {
		state.LastBackupLSN = currentLSN
		state.LastCheckLSN = currentLSN
	}
	state.AccumulatedGrowth = 0
	state.TriggeredBy = triggeredBy

	if err := SaveState(controller.stateFile, state); err != nil {
		return errors.Wrap(err, "failed to persist monitor state")
	}

	controller.handOffUpload(ctx, string(backupType), triggeredBy, now)
	return nil
}

func (controller *Controller) handOffUpload(ctx context.Context, backupType, triggeredBy string, finishTime time.Time) {
	if controller.uploader == nil {
		return
	}

	label, err := controller.engine.LatestBackupLabel(ctx)
	if err != nil {
		tracelog.WarningLogger.Printf("Failed to resolve backup label, using timestamp: %v", err)
		label = finishTime.UTC().Format("20060102-150405")
	}

	record := NewBackupRecord(controller.engine.Stanza(), backupType, label, triggeredBy, finishTime)
	if err := controller.uploader.UploadBackup(ctx, record); err != nil {
		// the local backup and state update already succeeded; the sync
		// tool is incremental, so the next upload attempt catches up
		tracelog.WarningLogger.Printf("Upload of backup '%s' failed: %v", label, err)
	}
}
