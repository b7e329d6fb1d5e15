package kv

import (
	"github.com/spf13/cobra"
	"github.com/sphagnumdb/sphagnum/cmd/util"
	"github.com/sphagnumdb/sphagnum/rpc/client"
)

var (
	rpcClient *client.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value operations on the cluster",
		PersistentPreRunE: setupKVClient,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if rpcClient != nil {
				return rpcClient.Close()
			}
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(setECmd)
	KeyValueCommands.AddCommand(setNXCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(appendCmd)
	KeyValueCommands.AddCommand(expireCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(existsCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(rootCmd)
	KeyValueCommands.AddCommand(proofCmd)
	KeyValueCommands.AddCommand(verifyCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the RPC client
func setupKVClient(cmd *cobra.Command, _ []string) (err error) {
	rpcClient, err = util.Connect(cmd)
	return err
}
