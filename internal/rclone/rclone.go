package rclone

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"
)

// Remote is the remote-sync collaborator. All transfer mechanics
// (multi-cloud credentials, chunking, retries inside a single transfer)
// belong to the external tool; this interface is only sequencing.
type Remote interface {
	// SyncRepository makes remotePath an exact mirror of localPath.
	// The operation is incremental and idempotent, so a failed or
	// interrupted sync is simply picked up by the next attempt.
	SyncRepository(ctx context.Context, localPath, remotePath string) error
	// UploadObject copies a single local file to the given remote path.
	UploadObject(ctx context.Context, localFile, remotePath string) error
	// List returns the object names directly under remotePath.
	List(ctx context.Context, remotePath string) ([]string, error)
}

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

type CliRemote struct {
	binary string
	run    CommandRunner
}

func NewCliRemote(binary string) *CliRemote {
	return &CliRemote{binary: binary, run: ExecCommandRunner}
}

func NewCliRemoteWithRunner(binary string, run CommandRunner) *CliRemote {
	return &CliRemote{binary: binary, run: run}
}

func (remote *CliRemote) SyncRepository(ctx context.Context, localPath, remotePath string) error {
	tracelog.DebugLogger.Printf("rclone sync %s -> %s", localPath, remotePath)
	_, err := remote.run(ctx, remote.binary, "sync", localPath, remotePath)
	if err != nil {
		return errors.Wrapf(err, "failed to sync repository %s to %s", localPath, remotePath)
	}
	return nil
}

func (remote *CliRemote) UploadObject(ctx context.Context, localFile, remotePath string) error {
	tracelog.DebugLogger.Printf("rclone copyto %s -> %s", localFile, remotePath)
	_, err := remote.run(ctx, remote.binary, "copyto", localFile, remotePath)
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s to %s", localFile, remotePath)
	}
	return nil
}

func (remote *CliRemote) List(ctx context.Context, remotePath string) ([]string, error) {
	output, err := remote.run(ctx, remote.binary, "lsf", remotePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", remotePath)
	}

	var names []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}
