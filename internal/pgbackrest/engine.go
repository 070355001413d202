package pgbackrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"
)

type BackupType string

const (
	FullBackup         BackupType = "full"
	IncrementalBackup  BackupType = "incr"
	DifferentialBackup BackupType = "diff"
)

func ParseBackupType(s string) (BackupType, error) {
	switch strings.ToLower(s) {
	case "full":
		return FullBackup, nil
	case "incr", "incremental":
		return IncrementalBackup, nil
	case "diff", "differential":
		return DifferentialBackup, nil
	}
	return "", errors.Errorf("invalid backup type: '%s', expected full, incr or diff", s)
}

// Engine is the backup engine collaborator. The monitor only needs to know
// whether a restorable base backup exists and how to request a new backup;
// everything else (compression, WAL archiving, retention) stays inside
// pgbackrest.
type Engine interface {
	Stanza() string
	HasBaseBackup(ctx context.Context) (bool, error)
	Backup(ctx context.Context, backupType BackupType) error
	// LatestBackupLabel returns the label of the most recent backup in the
	// stanza, used to identify uploads.
	LatestBackupLabel(ctx context.Context) (string, error)
}

// CommandRunner executes an external command and returns combined
// stdout/stderr. Injected so tests never spawn real binaries.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func ExecCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), errors.Wrapf(err, "%s %s failed: %s",
			name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

type CliEngine struct {
	binary string
	stanza string
	run    CommandRunner
}

func NewCliEngine(binary, stanza string) *CliEngine {
	return &CliEngine{binary: binary, stanza: stanza, run: ExecCommandRunner}
}

func NewCliEngineWithRunner(binary, stanza string, run CommandRunner) *CliEngine {
	return &CliEngine{binary: binary, stanza: stanza, run: run}
}

func (engine *CliEngine) Stanza() string {
	return engine.stanza
}

// stanzaInfo mirrors the parts of `pgbackrest info --output=json` the
// monitor cares about.
type stanzaInfo struct {
	Name   string `json:"name"`
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Backup []backupInfo `json:"backup"`
}

type backupInfo struct {
	Label     string `json:"label"`
	Type      string `json:"type"`
	Prior     string `json:"prior"`
	Timestamp struct {
		Start int64 `json:"start"`
		Stop  int64 `json:"stop"`
	} `json:"timestamp"`
	Lsn struct {
		Start string `json:"start"`
		Stop  string `json:"stop"`
	} `json:"lsn"`
}

func (engine *CliEngine) info(ctx context.Context) (*stanzaInfo, error) {
	output, err := engine.run(ctx, engine.binary,
		fmt.Sprintf("--stanza=%s", engine.stanza), "info", "--output=json")
	if err != nil {
		return nil, err
	}

	var stanzas []stanzaInfo
	if err := json.Unmarshal(output, &stanzas); err != nil {
		return nil, errors.Wrap(err, "failed to parse pgbackrest info output")
	}

	for i := range stanzas {
		if stanzas[i].Name == engine.stanza {
			return &stanzas[i], nil
		}
	}
	return nil, errors.Errorf("stanza '%s' not found in pgbackrest info output", engine.stanza)
}

// HasBaseBackup reports whether the stanza holds at least one full backup,
// so an incremental backup has something to chain onto.
func (engine *CliEngine) HasBaseBackup(ctx context.Context) (bool, error) {
	info, err := engine.info(ctx)
	if err != nil {
		return false, err
	}
	for _, backup := range info.Backup {
		if backup.Type == string(FullBackup) {
			return true, nil
		}
	}
	return false, nil
}

// LatestBackupLabel relies on pgbackrest listing backups oldest first.
func (engine *CliEngine) LatestBackupLabel(ctx context.Context) (string, error) {
	info, err := engine.info(ctx)
	if err != nil {
		return "", err
	}
	if len(info.Backup) == 0 {
		return "", errors.Errorf("no backups found for stanza '%s'", engine.stanza)
	}
	return info.Backup[len(info.Backup)-1].Label, nil
}

func (engine *CliEngine) Backup(ctx context.Context, backupType BackupType) error {
	tracelog.InfoLogger.Printf("Starting pgbackrest %s backup for stanza '%s'", backupType, engine.stanza)
	_, err := engine.run(ctx, engine.binary,
		fmt.Sprintf("--stanza=%s", engine.stanza), "backup", fmt.Sprintf("--type=%s", backupType))
	if err != nil {
		return errors.Wrapf(err, "pgbackrest %s backup failed", backupType)
	}
	tracelog.InfoLogger.Printf("Finished pgbackrest %s backup for stanza '%s'", backupType, engine.stanza)
	return nil
}
