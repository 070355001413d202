package internal

import (
	"time"

	"github.com/pkg/errors"

	"github.com/walguard/walguard/internal/monitor"
	"github.com/walguard/walguard/internal/pgbackrest"
	"github.com/walguard/walguard/internal/postgres"
	"github.com/walguard/walguard/internal/rclone"
)

func ConfigureEngine() pgbackrest.Engine {
	return pgbackrest.NewCliEngine(
		GetSettingWithDefault(PgBackRestBinarySetting),
		GetSettingWithDefault(PgBackRestStanzaSetting),
	)
}

func ConfigureRemote() rclone.Remote {
	return rclone.NewCliRemote(GetSettingWithDefault(RcloneBinarySetting))
}

func ConfigureRepository() *pgbackrest.Repository {
	return pgbackrest.NewRepository(GetSettingWithDefault(PgBackRestRepoPathSetting))
}

// ConfigureUploader builds the upload coordinator. An empty remote prefix
// is allowed: uploads are then skipped, leaving a local-only setup.
func ConfigureUploader() *monitor.UploadCoordinator {
	remotePrefix, _ := GetSetting(RemotePrefixSetting)
	return monitor.NewUploadCoordinator(
		ConfigureRemote(),
		GetSettingWithDefault(PgBackRestRepoPathSetting),
		remotePrefix,
	)
}

func ConfigureQueryRunner() (*postgres.PgQueryRunner, error) {
	conn, err := postgres.Connect()
	if err != nil {
		return nil, err
	}
	return postgres.NewPgQueryRunner(conn)
}

// ConfigureController wires the trigger controller from settings. The
// returned command timeout bounds each collaborator invocation; zero means
// no bound.
func ConfigureController(db postgres.LsnSource) (*monitor.Controller, time.Duration, error) {
	threshold, err := GetSizeSetting(WalGrowthThresholdSetting)
	if err != nil {
		return nil, 0, err
	}
	interval, err := GetDurationSetting(WalMonitorIntervalSetting)
	if err != nil {
		return nil, 0, err
	}
	if interval <= 0 {
		return nil, 0, errors.Errorf("%s must be positive, got %v", WalMonitorIntervalSetting, interval)
	}
	commandTimeout, err := GetDurationSetting(CommandTimeoutSetting)
	if err != nil {
		return nil, 0, err
	}

	controller := monitor.NewController(
		GetSettingWithDefault(StateFileSetting),
		threshold,
		commandTimeout,
		db,
		ConfigureEngine(),
		ConfigureUploader(),
	)
	return controller, interval, nil
}
