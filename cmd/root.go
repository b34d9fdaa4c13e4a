package cmd

import (
	"fmt"
	"os"

	"github.com/sealkv/sealkv/cmd/kv"
	"github.com/sealkv/sealkv/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sealkv",
		Short: "encrypted key-value vault",
		Long: fmt.Sprintf(`sealKV (v%s)

An encrypted key-value persistence layer combining an in-memory hot
cache with asynchronous, write-coalescing persistence and a pluggable
encryption engine.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sealKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sealKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("log level to use (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
