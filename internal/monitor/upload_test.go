package monitor

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	syncCalls    int
	syncFailures int
	syncedLocal  string
	syncedRemote string

	uploadedContent []byte
	uploadedRemote  string
	uploadErr       error

	listNames []string
}

func (remote *fakeRemote) SyncRepository(ctx context.Context, localPath, remotePath string) error {
	remote.syncCalls++
	if remote.syncFailures > 0 {
		remote.syncFailures--
		return errors.New("temporary network failure")
	}
	remote.syncedLocal = localPath
	remote.syncedRemote = remotePath
	return nil
}

func (remote *fakeRemote) UploadObject(ctx context.Context, localFile, remotePath string) error {
	if remote.uploadErr != nil {
		return remote.uploadErr
	}
	content, err := os.ReadFile(localFile)
	if err != nil {
		return err
	}
	remote.uploadedContent = content
	remote.uploadedRemote = remotePath
	return nil
}

func (remote *fakeRemote) List(ctx context.Context, remotePath string) ([]string, error) {
	return remote.listNames, nil
}

func testRecord() BackupRecord {
	return NewBackupRecord("main", "incr", "20240304-123000I", TriggeredByIncremental,
		time.Date(2024, 3, 4, 12, 30, 0, 0, time.UTC))
}

// withoutRetryDelays lets tests exhaust the retry budget without sleeping.
func withoutRetryDelays(coordinator *UploadCoordinator) *UploadCoordinator {
	coordinator.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(0) }
	return coordinator
}

func TestUploadBackup_SyncsRepoAndWritesMetadata(t *testing.T) {
	remote := &fakeRemote{}
	coordinator := NewUploadCoordinator(remote, "/var/lib/pgbackrest", "s3:bucket/walguard")

	err := coordinator.UploadBackup(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pgbackrest", remote.syncedLocal)
	assert.Equal(t, "s3:bucket/walguard/repo", remote.syncedRemote)
	assert.Equal(t, "s3:bucket/walguard/metadata/20240304-123000I.json", remote.uploadedRemote)

	var record BackupRecord
	require.NoError(t, json.Unmarshal(remote.uploadedContent, &record))
	assert.Equal(t, "incr", record.BackupType)
	assert.Equal(t, "main", record.Stanza)
	assert.NotEmpty(t, record.ID)
}

func TestUploadBackup_RetriesTransientSyncFailures(t *testing.T) {
	remote := &fakeRemote{syncFailures: 2}
	coordinator := withoutRetryDelays(NewUploadCoordinator(remote, "/var/lib/pgbackrest", "s3:bucket/walguard"))

	err := coordinator.UploadBackup(context.Background(), testRecord())

	require.NoError(t, err)
	assert.Equal(t, 3, remote.syncCalls)
}

func TestUploadBackup_GivesUpAfterRetryBudget(t *testing.T) {
	remote := &fakeRemote{syncFailures: 10}
	coordinator := withoutRetryDelays(NewUploadCoordinator(remote, "/var/lib/pgbackrest", "s3:bucket/walguard"))

	err := coordinator.UploadBackup(context.Background(), testRecord())

	assert.Error(t, err)
	assert.Equal(t, int(defaultSyncRetries)+1, remote.syncCalls)
}

func TestUploadBackup_SkippedWithoutRemotePrefix(t *testing.T) {
	remote := &fakeRemote{}
	coordinator := NewUploadCoordinator(remote, "/var/lib/pgbackrest", "")

	err := coordinator.UploadBackup(context.Background(), testRecord())

	require.NoError(t, err)
	assert.Equal(t, 0, remote.syncCalls)
}

func TestUploadBackup_MetadataFailureIsAnError(t *testing.T) {
	remote := &fakeRemote{uploadErr: errors.New("denied")}
	coordinator := NewUploadCoordinator(remote, "/var/lib/pgbackrest", "s3:bucket/walguard")

	err := coordinator.UploadBackup(context.Background(), testRecord())

	assert.Error(t, err)
}

func TestListBackupRecords(t *testing.T) {
	remote := &fakeRemote{listNames: []string{"a.json", "b.json"}}
	coordinator := NewUploadCoordinator(remote, "/var/lib/pgbackrest", "s3:bucket/walguard")

	names, err := coordinator.ListBackupRecords(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)
}

func TestNewBackupRecord_StampsUniqueIDAndUTCTime(t *testing.T) {
	first := testRecord()
	second := testRecord()

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, time.UTC, first.FinishTime.Location())
}
