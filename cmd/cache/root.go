package cache

import (
	"github.com/ValentinKolb/cbrest/cmd/util"
	"github.com/ValentinKolb/cbrest/lib/cache"
	"github.com/ValentinKolb/cbrest/lib/client"
	"github.com/spf13/cobra"
)

var (
	cbClient    *client.Client
	cacheClient cache.IClient

	// CacheCommands represents the cache command group
	CacheCommands = &cobra.Command{
		Use:                "cache",
		Short:              "Perform cache operations on the bucket",
		PersistentPreRunE:  setupCacheClient,
		PersistentPostRunE: closeCacheClient,
	}
)

func init() {
	// Add cluster flags to the cache command
	util.SetupClientFlags(CacheCommands)

	// Add subcommands
	CacheCommands.AddCommand(setCmd)
	CacheCommands.AddCommand(addCmd)
	CacheCommands.AddCommand(replaceCmd)
	CacheCommands.AddCommand(getCmd)
	CacheCommands.AddCommand(delCmd)
	CacheCommands.AddCommand(perfTestCmd)
}

// setupCacheClient creates the client and waits for the cache client of the current topology
func setupCacheClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	cbClient, err = util.NewClient()
	if err != nil {
		return err
	}

	ctx, cancel := util.WaitContext()
	defer cancel()

	cacheClient, err = cbClient.Cache(ctx)
	return err
}

// closeCacheClient releases the client after the command ran
func closeCacheClient(_ *cobra.Command, _ []string) error {
	if cbClient == nil {
		return nil
	}
	return cbClient.Close()
}
