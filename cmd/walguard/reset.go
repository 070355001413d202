package walguard

import (
	"github.com/spf13/cobra"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal"
)

const ResetShortDescription = "Clears the persisted monitor state"

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: ResetShortDescription,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := internal.HandleReset()
		tracelog.ErrorLogger.FatalOnError(err)
	},
}

func init() {
	Cmd.AddCommand(resetCmd)
}
