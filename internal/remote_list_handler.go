package internal

import (
	"context"
	"fmt"
	"io"

	"github.com/wal-g/tracelog"
)

// HandleRemoteList prints the metadata records of uploaded backups.
func HandleRemoteList(ctx context.Context, output io.Writer) error {
	if remotePrefix, ok := GetSetting(RemotePrefixSetting); !ok || remotePrefix == "" {
		tracelog.InfoLogger.Printf("%s is not set, nothing to list", RemotePrefixSetting)
		return nil
	}

	coordinator := ConfigureUploader()
	names, err := coordinator.ListBackupRecords(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		tracelog.InfoLogger.Println("No uploaded backups found")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(output, name)
	}
	return nil
}
