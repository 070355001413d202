package walguard

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal"
)

const RemoteListShortDescription = "Lists backup metadata records uploaded to remote storage"

var remoteListCmd = &cobra.Command{
	Use:   "remote-list",
	Short: RemoteListShortDescription,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := internal.HandleRemoteList(context.Background(), os.Stdout)
		tracelog.ErrorLogger.FatalOnError(err)
	},
}

func init() {
	Cmd.AddCommand(remoteListCmd)
}
