package kv

import (
	"github.com/sealkv/sealkv/cmd/util"
	"github.com/sealkv/sealkv/lib/vault"
	"github.com/spf13/cobra"
)

var (
	kvVault    vault.IVault
	closeVault func()

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform vault operations",
		PersistentPreRunE: setupVault,
		PersistentPostRun: teardownVault,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common vault construction flags to the KV command
	util.SetupVaultFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(watchCmd)
	KeyValueCommands.AddCommand(metricsCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupVault builds the vault all subcommands operate on
func setupVault(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	v, cleanup, err := util.OpenVault()
	if err != nil {
		return err
	}

	kvVault = v
	closeVault = cleanup
	return nil
}

// teardownVault flushes pending writes and releases all resources
func teardownVault(_ *cobra.Command, _ []string) {
	if closeVault != nil {
		closeVault()
	}
}
