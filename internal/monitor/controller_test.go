package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walguard/walguard/internal/pgbackrest"
)

type fakeDB struct {
	pingErr   error
	positions []string
	lsnErr    error
}

func (db *fakeDB) Ping(ctx context.Context) error {
	return db.pingErr
}

func (db *fakeDB) CurrentWalLsn(ctx context.Context) (string, error) {
	if db.lsnErr != nil {
		return "", db.lsnErr
	}
	if len(db.positions) == 0 {
		return "", nil
	}
	position := db.positions[0]
	if len(db.positions) > 1 {
		db.positions = db.positions[1:]
	}
	return position, nil
}

type fakeEngine struct {
	hasBase     bool
	hasBaseErr  error
	backupErr   error
	backups     []pgbackrest.BackupType
	latestLabel string
}

func (engine *fakeEngine) Stanza() string { return "main" }

func (engine *fakeEngine) HasBaseBackup(ctx context.Context) (bool, error) {
	return engine.hasBase, engine.hasBaseErr
}

func (engine *fakeEngine) Backup(ctx context.Context, backupType pgbackrest.BackupType) error {
	if engine.backupErr != nil {
		return engine.backupErr
	}
	engine.backups = append(engine.backups, backupType)
	engine.hasBase = true
	return nil
}

func (engine *fakeEngine) LatestBackupLabel(ctx context.Context) (string, error) {
	if engine.latestLabel == "" {
		return "", errors.New("no backups")
	}
	return engine.latestLabel, nil
}

type fakeUploader struct {
	records []BackupRecord
	err     error
}

func (uploader *fakeUploader) UploadBackup(ctx context.Context, record BackupRecord) error {
	if uploader.err != nil {
		return uploader.err
	}
	uploader.records = append(uploader.records, record)
	return nil
}

func newTestController(t *testing.T, db *fakeDB, engine *fakeEngine, uploader Uploader) *Controller {
	stateFile := filepath.Join(t.TempDir(), "wal-monitor.state")
	controller := NewController(stateFile, mebibyte, 0, db, engine, uploader)
	controller.now = func() time.Time {
		return time.Date(2024, 3, 4, 12, 30, 0, 0, time.UTC)
	}
	return controller
}

func TestTick_FirstTickRecordsBaseline(t *testing.T) {
	db := &fakeDB{positions: []string{"0/1000000"}}
	engine := &fakeEngine{}
	controller := newTestController(t, db, engine, nil)

	controller.Tick(context.Background())

	state := LoadState(controller.stateFile)
	assert.Equal(t, "0/1000000", state.LastCheckLSN)
	assert.Equal(t, uint64(0), state.AccumulatedGrowth)
	assert.Empty(t, engine.backups)
}

func TestTick_TriggersIncrementalOnThreshold(t *testing.T) {
	db := &fakeDB{positions: []string{"0/1000000", "0/1100000"}}
	engine := &fakeEngine{hasBase: true, latestLabel: "20240304-120000F_20240304-123000I"}
	uploader := &fakeUploader{}
	controller := newTestController(t, db, engine, uploader)

	controller.Tick(context.Background())
	controller.Tick(context.Background())

	require.Equal(t, []pgbackrest.BackupType{pgbackrest.IncrementalBackup}, engine.backups)

	state := LoadState(controller.stateFile)
	assert.Equal(t, uint64(0), state.AccumulatedGrowth, "counter resets after a successful trigger")
	assert.Equal(t, "0/1100000", state.LastBackupLSN)
	assert.Equal(t, TriggeredByIncremental, state.TriggeredBy)
	require.NotNil(t, state.LastBackupTime)

	require.Len(t, uploader.records, 1)
	assert.Equal(t, "incr", uploader.records[0].BackupType)
	assert.Equal(t, TriggeredByIncremental, uploader.records[0].TriggeredBy)
	assert.Equal(t, "20240304-120000F_20240304-123000I", uploader.records[0].Label)
}

func TestTick_TakesFullBackupWhenNoBaseExists(t *testing.T) {
	db := &fakeDB{positions: []string{"0/1000000", "0/1100000"}}
	engine := &fakeEngine{hasBase: false, latestLabel: "20240304-123000F"}
	controller := newTestController(t, db, engine, nil)

	controller.Tick(context.Background())
	controller.Tick(context.Background())

	require.Equal(t, []pgbackrest.BackupType{pgbackrest.FullBackup}, engine.backups)
	assert.Equal(t, TriggeredByFull, LoadState(controller.stateFile).TriggeredBy)
}

func TestTick_BackupFailurePreservesAccumulatedGrowth(t *testing.T) {
	db := &fakeDB{positions: []string{"0/1000000", "0/1100000", "0/1140000"}}
	engine := &fakeEngine{hasBase: true, backupErr: errors.New("stanza busy")}
	controller := newTestController(t, db, engine, nil)

	controller.Tick(context.Background())
	controller.Tick(context.Background()) // trigger fires, backup fails

	state := LoadState(controller.stateFile)
	assert.Equal(t, mebibyte, state.AccumulatedGrowth, "failed attempt must not reset the counter")
	assert.Empty(t, state.LastBackupLSN)

	// growth observed after the failure stacks on top of the preserved counter
	engine.backupErr = nil
	engine.latestLabel = "20240304-123000F"
	controller.Tick(context.Background())

	state = LoadState(controller.stateFile)
	assert.Equal(t, uint64(0), state.AccumulatedGrowth)
	assert.Equal(t, "0/1140000", state.LastBackupLSN)
}

func TestTick_SkipsWhenDatabaseUnreachable(t *testing.T) {
	db := &fakeDB{pingErr: errors.New("connection refused")}
	engine := &fakeEngine{}
	controller := newTestController(t, db, engine, nil)
	require.NoError(t, SaveState(controller.stateFile, MonitorState{
		LastCheckLSN:      "0/1000000",
		AccumulatedGrowth: 500,
	}))

	controller.Tick(context.Background())

	state := LoadState(controller.stateFile)
	assert.Equal(t, "0/1000000", state.LastCheckLSN, "a skipped tick must not mutate state")
	assert.Equal(t, uint64(500), state.AccumulatedGrowth)
}

func TestTick_SkipsWhenPositionUnavailable(t *testing.T) {
	db := &fakeDB{lsnErr: errors.New("query failed")}
	engine := &fakeEngine{}
	controller := newTestController(t, db, engine, nil)

	controller.Tick(context.Background())

	assert.Equal(t, MonitorState{}, LoadState(controller.stateFile))
	assert.Empty(t, engine.backups)
}

func TestTick_UploadFailureDoesNotUndoStateUpdate(t *testing.T) {
	db := &fakeDB{positions: []string{"0/1000000", "0/1100000"}}
	engine := &fakeEngine{hasBase: true, latestLabel: "20240304-123000I"}
	uploader := &fakeUploader{err: errors.New("remote unavailable")}
	controller := newTestController(t, db, engine, uploader)

	controller.Tick(context.Background())
	controller.Tick(context.Background())

	state := LoadState(controller.stateFile)
	assert.Equal(t, uint64(0), state.AccumulatedGrowth,
		"the local backup succeeded, upload failure must stay a warning")
	assert.Equal(t, "0/1100000", state.LastBackupLSN)
}

// stateReadingUploader snapshots the on-disk state at hand-off time, so
// tests can check what a monitor restarted mid-upload would read back.
type stateReadingUploader struct {
	stateFile     string
	observedState MonitorState
}

func (uploader *stateReadingUploader) UploadBackup(ctx context.Context, record BackupRecord) error {
	uploader.observedState = LoadState(uploader.stateFile)
	return nil
}

func TestTick_StatePersistedBeforeUploadHandOff(t *testing.T) {
	db := &fakeDB{positions: []string{"0/1000000", "0/1100000"}}
	engine := &fakeEngine{hasBase: true, latestLabel: "20240304-123000I"}
	controller := newTestController(t, db, engine, nil)
	uploader := &stateReadingUploader{stateFile: controller.stateFile}
	controller.uploader = uploader

	controller.Tick(context.Background())
	controller.Tick(context.Background())

	// the upload can run for minutes; a crash during it must find the
	// finished backup already on disk, or the restarted monitor re-fires
	assert.Equal(t, "0/1100000", uploader.observedState.LastBackupLSN)
	assert.Equal(t, uint64(0), uploader.observedState.AccumulatedGrowth)
	require.NotNil(t, uploader.observedState.LastBackupTime)
}

func TestRecordSuccessfulBackup_ResetsCounterAndRebaselines(t *testing.T) {
	db := &fakeDB{positions: []string{"0/2000000"}}
	engine := &fakeEngine{hasBase: true, latestLabel: "20240304-123000F"}
	uploader := &fakeUploader{}
	controller := newTestController(t, db, engine, uploader)
	require.NoError(t, SaveState(controller.stateFile, MonitorState{
		LastCheckLSN:      "0/1000000",
		AccumulatedGrowth: 999,
	}))

	err := controller.RecordSuccessfulBackup(context.Background(), pgbackrest.FullBackup, "forced")
	require.NoError(t, err)

	state := LoadState(controller.stateFile)
	assert.Equal(t, uint64(0), state.AccumulatedGrowth)
	assert.Equal(t, "0/2000000", state.LastBackupLSN)
	assert.Equal(t, "0/2000000", state.LastCheckLSN)
	assert.Equal(t, "forced", state.TriggeredBy)

	require.Len(t, uploader.records, 1)
	assert.Equal(t, "full", uploader.records[0].BackupType)
}

func TestRun_CreatesStateDirectoryOnFirstRun(t *testing.T) {
	db := &fakeDB{positions: []string{"0/1000000"}}
	engine := &fakeEngine{}
	stateFile := filepath.Join(t.TempDir(), "var", "lib", "walguard", "wal-monitor.state")
	controller := NewController(stateFile, mebibyte, 0, db, engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// the lock file lives in the not-yet-existing state directory
	assert.NoError(t, controller.Run(ctx, time.Hour))
}

func TestRun_RefusesSecondInstance(t *testing.T) {
	db := &fakeDB{positions: []string{"0/1000000"}}
	engine := &fakeEngine{}
	controller := newTestController(t, db, engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan error, 1)
	go func() {
		started <- controller.Run(ctx, time.Hour)
	}()

	// give the first instance time to take the lock
	time.Sleep(100 * time.Millisecond)

	second := NewController(controller.stateFile, mebibyte, 0, db, engine, nil)
	err := second.Run(ctx, time.Hour)
	assert.Error(t, err)

	cancel()
	assert.NoError(t, <-started)
}
