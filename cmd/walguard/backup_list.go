package walguard

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal"
)

const (
	BackupListShortDescription = "Lists backups in the local engine repository"
	PrettyFlag                 = "pretty"
	JSONFlag                   = "json"
)

var (
	backupListCmd = &cobra.Command{
		Use:   "backup-list",
		Short: BackupListShortDescription,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			repo := internal.ConfigureRepository()
			stanza := internal.GetSettingWithDefault(internal.PgBackRestStanzaSetting)
			err := internal.HandleBackupList(repo, stanza, os.Stdout, prettyOutput, jsonOutput)
			tracelog.ErrorLogger.FatalOnError(err)
		},
	}
	prettyOutput = false
	jsonOutput   = false
)

func init() {
	Cmd.AddCommand(backupListCmd)

	backupListCmd.Flags().BoolVar(&prettyOutput, PrettyFlag, false, "Print in a table")
	backupListCmd.Flags().BoolVar(&jsonOutput, JSONFlag, false, "Output in json format")
}
