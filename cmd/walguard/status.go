package walguard

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal"
)

const StatusShortDescription = "Shows the monitor state and effective configuration"

var (
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: StatusShortDescription,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			err := internal.HandleStatus(os.Stdout, statusOutputAsJSON)
			tracelog.ErrorLogger.FatalOnError(err)
		},
	}
	statusOutputAsJSON = false
)

func init() {
	Cmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusOutputAsJSON, "json", false, "Output in json format")
}
