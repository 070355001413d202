package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal/rclone"
)

const (
	repoSyncSubdir = "repo"
	metadataSubdir = "metadata"

	defaultSyncRetries = 3
)

// BackupRecord is the metadata document written next to (not inside) the
// synced repository, so operators can list triggered backups without
// reading engine internals.
type BackupRecord struct {
	ID          string    `json:"id"`
	Stanza      string    `json:"stanza"`
	BackupType  string    `json:"backup_type"`
	Label       string    `json:"label"`
	TriggeredBy string    `json:"triggered_by"`
	FinishTime  time.Time `json:"finish_time"`
}

// Uploader hands a finished backup off to remote storage.
type Uploader interface {
	UploadBackup(ctx context.Context, record BackupRecord) error
}

// UploadCoordinator syncs the engine's on-disk repository to the remote and
// records backup metadata under a separate prefix. Because the sync tool is
// incremental and idempotent, there is no retry queue: whatever a failed
// attempt leaves behind, the next sync picks up.
type UploadCoordinator struct {
	remote       rclone.Remote
	repoPath     string
	remotePrefix string
	syncRetries  uint64
	newBackOff   func() backoff.BackOff
}

func NewUploadCoordinator(remote rclone.Remote, repoPath, remotePrefix string) *UploadCoordinator {
	return &UploadCoordinator{
		remote:       remote,
		repoPath:     repoPath,
		remotePrefix: remotePrefix,
		syncRetries:  defaultSyncRetries,
		newBackOff:   func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

func (coordinator *UploadCoordinator) RepoTarget() string {
	return path.Join(coordinator.remotePrefix, repoSyncSubdir)
}

func (coordinator *UploadCoordinator) MetadataTarget() string {
	return path.Join(coordinator.remotePrefix, metadataSubdir)
}

func (coordinator *UploadCoordinator) UploadBackup(ctx context.Context, record BackupRecord) error {
	if coordinator.remotePrefix == "" {
		tracelog.DebugLogger.Println("No remote prefix configured, skipping upload")
		return nil
	}

	err := coordinator.retry(ctx, func() error {
		return coordinator.remote.SyncRepository(ctx, coordinator.repoPath, coordinator.RepoTarget())
	})
	if err != nil {
		return errors.Wrap(err, "repository sync failed")
	}

	if err := coordinator.uploadRecord(ctx, record); err != nil {
		return errors.Wrap(err, "metadata upload failed")
	}

	tracelog.InfoLogger.Printf("Uploaded %s backup '%s' to %s", record.BackupType, record.Label, coordinator.remotePrefix)
	return nil
}

func (coordinator *UploadCoordinator) uploadRecord(ctx context.Context, record BackupRecord) error {
	content, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return err
	}

	localFile := filepath.Join(os.TempDir(), record.Label+".json")
	if err := os.WriteFile(localFile, content, 0644); err != nil {
		return errors.Wrapf(err, "failed to write metadata record %s", localFile)
	}
	defer os.Remove(localFile)

	return coordinator.remote.UploadObject(ctx, localFile, path.Join(coordinator.MetadataTarget(), record.Label+".json"))
}

// ListBackupRecords returns the names of uploaded metadata records.
func (coordinator *UploadCoordinator) ListBackupRecords(ctx context.Context) ([]string, error) {
	if coordinator.remotePrefix == "" {
		return nil, nil
	}
	return coordinator.remote.List(ctx, coordinator.MetadataTarget())
}

// NewBackupRecord stamps a freshly finished backup with a unique ID.
func NewBackupRecord(stanza, backupType, label, triggeredBy string, finishTime time.Time) BackupRecord {
	return BackupRecord{
		ID:          uuid.New().String(),
		Stanza:      stanza,
		BackupType:  backupType,
		Label:       label,
		TriggeredBy: triggeredBy,
		FinishTime:  finishTime.UTC(),
	}
}

func (coordinator *UploadCoordinator) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithMaxRetries(coordinator.newBackOff(), coordinator.syncRetries)
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
