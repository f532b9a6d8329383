package cmd

import (
	"fmt"
	"github.com/ValentinKolb/cbrest/cmd/cache"
	"github.com/ValentinKolb/cbrest/cmd/topology"
	"github.com/ValentinKolb/cbrest/cmd/util"
	"github.com/ValentinKolb/cbrest/cmd/view"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cbrest",
		Short: "cluster aware REST and cache client",
		Long: fmt.Sprintf(`cbrest (v%s)

A client for Couchbase style clusters. It discovers the cluster topology
through the REST api, runs paginated view queries on healthy nodes and
talks to the bucket cache through the memcached proxy.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cbrest",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cbrest v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add Commands
	RootCmd.AddCommand(topology.TopologyCmd)
	RootCmd.AddCommand(view.ViewCmd)
	RootCmd.AddCommand(cache.CacheCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, common.DefaultLogLevel, util.WrapString("log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
