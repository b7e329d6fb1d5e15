package cluster

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sphagnumdb/sphagnum/cmd/util"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/rpc/client"
)

var (
	rpcClient *client.Client

	// ClusterCommands inspects the membership of a cluster through one Seed
	ClusterCommands = &cobra.Command{
		Use:   "cluster",
		Short: "Inspect the Seeds and Fields of the cluster",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			rpcClient, err = util.Connect(cmd)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if rpcClient != nil {
				return rpcClient.Close()
			}
			return nil
		},
	}

	passportCmd = &cobra.Command{
		Use:   "passport",
		Short: "Show the passport of the Seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rpcClient.Passport()
			if err != nil {
				return err
			}
			fmt.Println(p)
			return nil
		},
	}

	membersCmd = &cobra.Command{
		Use:   "members",
		Short: "List all live Seeds the Seed knows, grouped by Field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			members, err := rpcClient.Members()
			if err != nil {
				return err
			}
			fmt.Print(formatMembers(members))
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupRPCClientFlags(ClusterCommands)

	ClusterCommands.AddCommand(passportCmd)
	ClusterCommands.AddCommand(membersCmd)
}

// formatMembers renders the members as a table sorted by Field and Seed id
func formatMembers(members []passport.Passport) string {
	slices.SortFunc(members, func(a, b passport.Passport) int {
		if c := strings.Compare(a.Field, b.Field); c != 0 {
			return c
		}
		return strings.Compare(a.SeedID, b.SeedID)
	})

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tMODE\tSEED\tRPC\tVERSION")
	fields := map[string]struct{}{}
	for _, m := range members {
		fields[m.Field] = struct{}{}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Field, m.Mode, m.SeedID, m.RPCAddr, m.Version)
	}
	w.Flush()
	fmt.Fprintf(&sb, "%d seeds in %d fields\n", len(members), len(fields))
	return sb.String()
}
