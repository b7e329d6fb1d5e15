package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sphagnumdb/sphagnum/cmd/cluster"
	"github.com/sphagnumdb/sphagnum/cmd/kv"
	"github.com/sphagnumdb/sphagnum/cmd/serve"
	"github.com/sphagnumdb/sphagnum/cmd/util"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sphagnum",
		Short: "decentralized key-value store",
		Long: fmt.Sprintf(`SphagnumDB (v%s)

A decentralized key-value store. Seeds gossip their passports, group
into Fields that each own a share of the keys and keep the replicas of
a Field in sync with Merkle trees.`, util.Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of SphagnumDB",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("SphagnumDB v%s\n", util.Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(cluster.ClusterCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
