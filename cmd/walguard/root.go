package walguard

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal"
)

const ShortDescription = "PostgreSQL WAL-growth-triggered backup controller"

// These variables are here only to show current version. They are set in makefile during build process
var Version = "devel"
var GitRevision = "devel"
var BuildDate = "devel"

var Cmd = &cobra.Command{
	Use:     "walguard",
	Short:   ShortDescription,
	Version: Version + "\t" + GitRevision + "\t" + BuildDate,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := internal.Configure()
		tracelog.ErrorLogger.FatalOnError(err)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the Cmd.
func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(internal.InitConfig)

	Cmd.PersistentFlags().StringVar(&internal.CfgFile, "config", "", "config file (default is env-only)")
	Cmd.InitDefaultVersionFlag()
	internal.AddConfigFlags(Cmd)
}
