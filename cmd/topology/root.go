package topology

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/cbrest/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
)

var (
	// TopologyCmd prints the discovered nodes of the cluster
	TopologyCmd = &cobra.Command{
		Use:               "topology",
		Short:             "Show the nodes of the cluster",
		Long:              "Loads the cluster topology from the seed servers and prints every active and healthy node.",
		PersistentPreRunE: bindFlags,
		RunE:              run,
	}
)

func init() {
	util.SetupClientFlags(TopologyCmd)

	key := "metrics"
	TopologyCmd.Flags().Bool(key, false, util.WrapString("Also print the pool metrics in prometheus format"))
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func run(_ *cobra.Command, _ []string) error {
	c, err := util.NewClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := util.WaitContext()
	defer cancel()

	// waits until the first refresh found a node
	if _, err := c.Pool().SelectNode(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no healthy node found within %ds", viper.GetInt("wait"))
		}
		return err
	}

	config := c.Config()
	fmt.Println(config.String())
	fmt.Println()

	fmt.Printf("%-18s %s\n", "ID", "ADDRESS")
	for _, n := range c.Nodes() {
		fmt.Printf("%-18s %s\n", n.ID(), n)
	}

	servers := c.Pool().CacheServers()
	fmt.Println()
	fmt.Printf("Cache servers (%d):\n", len(servers))
	for _, s := range servers {
		fmt.Printf("  %s\n", s.Address())
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		c.WriteMetrics(os.Stdout)
	}
	return nil
}
