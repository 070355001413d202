package pgbackrest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

const (
	BackupPath    = "backup"
	BackupInfoIni = "backup.info"
)

// BackupSettings is one entry of the [backup:current] section in the
// repository's backup.info file; values are pgbackrest-written JSON.
type BackupSettings struct {
	Name                    string
	BackrestFormat          int    `json:"backrest-format"`
	BackrestVersion         string `json:"backrest-version"`
	BackupInfoRepoSize      int64  `json:"backup-info-repo-size"`
	BackupInfoRepoSizeDelta int64  `json:"backup-info-repo-size-delta"`
	BackupInfoSize          int64  `json:"backup-info-size"`
	BackupInfoSizeDelta     int64  `json:"backup-info-size-delta"`

	BackupTimestampStart int64  `json:"backup-timestamp-start"`
	BackupTimestampStop  int64  `json:"backup-timestamp-stop"`
	BackupType           string `json:"backup-type"`

	BackupArchiveStart string   `json:"backup-archive-start"`
	BackupArchiveStop  string   `json:"backup-archive-stop"`
	BackupPrior        string   `json:"backup-prior"`
	BackupReference    []string `json:"backup-reference"`
}

// Repository reads the backup engine's on-disk repository directly, which
// lets status tooling list backups without invoking the engine binary.
type Repository struct {
	path string
}

func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

func (repo *Repository) Path() string {
	return repo.path
}

func (repo *Repository) backupInfoPath(stanza string) string {
	return filepath.Join(repo.path, BackupPath, stanza, BackupInfoIni)
}

// Exists reports whether the stanza has been initialized in this repository.
func (repo *Repository) Exists(stanza string) bool {
	_, err := os.Stat(repo.backupInfoPath(stanza))
	return err == nil
}

// LoadBackupsSettings lists the current backups recorded in the stanza's
// backup.info, oldest first.
func (repo *Repository) LoadBackupsSettings(stanza string) ([]BackupSettings, error) {
	loadOptions := ini.LoadOptions{
		// backup.info values are JSON, ini must not mangle them
		IgnoreInlineComment: true,
	}
	cfg, err := ini.LoadSources(loadOptions, repo.backupInfoPath(stanza))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read backup.info for stanza '%s'", stanza)
	}

	backupSection, err := cfg.GetSection("backup:current")
	if err != nil {
		// stanza initialized but no backups taken yet
		return nil, nil
	}

	var backupsSettings []BackupSettings
	for _, key := range backupSection.Keys() {
		settings := BackupSettings{
			Name: key.Name(),
		}
		if err := json.Unmarshal([]byte(key.Value()), &settings); err != nil {
			return nil, errors.Wrapf(err, "failed to parse backup.info entry '%s'", key.Name())
		}
		backupsSettings = append(backupsSettings, settings)
	}

	sort.Slice(backupsSettings, func(i, j int) bool {
		return backupsSettings[i].BackupTimestampStart < backupsSettings[j].BackupTimestampStart
	})
	return backupsSettings, nil
}
