package serve

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cmdUtil "github.com/sphagnumdb/sphagnum/cmd/util"
	"github.com/sphagnumdb/sphagnum/lib/db/util"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/lib/path"
	"github.com/sphagnumdb/sphagnum/lib/seed"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// Config is everything serve needs to run a Seed
type Config struct {
	Field     string
	Mode      passport.Mode
	Advertise string // RPC address announced to other Seeds

	Server common.ServerConfig
	Client common.ClientConfig
	Mesh   path.Config
	Seed   seed.Config
	Raft   common.RaftConfig

	TombstoneTTL    time.Duration
	MetricsEndpoint string
}

var (
	serveConfig = &Config{}
	ServeCmd    = &cobra.Command{
		Use:   "serve",
		Short: "Run a Seed",
		Long: `Run a Seed: a storage node that holds a replica of its Field, gossips its
passport to the other Seeds and routes requests to the Field owning a key.
The configuration can be set via command line flags or environment variables.
The format of the environment variables is SPHAGNUM_<flag> (e.g. SPHAGNUM_WRITE_QUORUM=2)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)
	flags := ServeCmd.PersistentFlags()

	// identity
	flags.String("field", passport.DefaultField, cmdUtil.WrapString("The Field (shard) this Seed serves"))
	flags.String("mode", string(passport.ModeQuorum), cmdUtil.WrapString("Replication mode of the Field: quorum (replicate records, wait for a write quorum) or raft (the Field is a raft group)"))

	// rpc
	flags.String("endpoint", "0.0.0.0:8080", cmdUtil.WrapString("The address on which the RPC server listens (e.g. 0.0.0.0:8080, /tmp/sphagnum.sock, ...)"))
	flags.String("advertise", "", cmdUtil.WrapString("The RPC address other Seeds reach this Seed on. Defaults to the endpoint, wildcard hosts are replaced with the gossip address"))
	flags.Int64("timeout", 5, cmdUtil.WrapString("Timeout in seconds of requests to other Seeds and of raft proposals"))
	flags.Int("workers", 16, cmdUtil.WrapString("Concurrent requests per connection (tcp and unix only)"))

	// gossip
	flags.String("gossip-bind", "0.0.0.0", cmdUtil.WrapString("The address the gossip layer binds to"))
	flags.Int("gossip-port", 7946, cmdUtil.WrapString("The port the gossip layer binds to"))
	flags.String("gossip-advertise", "", cmdUtil.WrapString("The gossip address announced to other Seeds (default: detected)"))
	flags.Int("gossip-advertise-port", 0, cmdUtil.WrapString("The gossip port announced to other Seeds (default: gossip-port)"))
	flags.String("join", "", cmdUtil.WrapString("Comma-separated gossip addresses of known Seeds (e.g. 10.0.0.1:7946,10.0.0.2:7946)"))

	// replication
	flags.Int("write-quorum", 0, cmdUtil.WrapString("Replicas (this one included) that must acknowledge a write. 0 selects a majority of the live Field members"))
	flags.Int("read-quorum", 0, cmdUtil.WrapString("Replicas a read consults. 0 selects 1 (local reads)"))
	flags.Duration("anti-entropy-interval", 10*time.Second, cmdUtil.WrapString("Time between anti-entropy rounds, 0 disables them"))
	flags.Duration("tick-interval", 100*time.Millisecond, cmdUtil.WrapString("Time between clock ticks that let TTLs expire without writes"))
	flags.Int("merkle-depth", 10, cmdUtil.WrapString("Depth of the Merkle trees (2^depth buckets). Must be equal on all Seeds"))
	flags.Int("virtual-nodes", 128, cmdUtil.WrapString("Ring positions per Field. Must be equal on all Seeds"))
	flags.Duration("tombstone-ttl", time.Hour, cmdUtil.WrapString("How long deleted keys are remembered. Replicas offline for longer may resurrect deleted keys"))

	// raft
	flags.String("replica-id", "", cmdUtil.WrapString("(raft mode) The unique name of this replica in the raft group of the Field (e.g. 'node-1')"))
	flags.String("cluster-members", "", cmdUtil.WrapString("(raft mode) Comma-separated list of the raft addresses of the Field in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))
	flags.String("data-dir", "data", cmdUtil.WrapString("(raft mode) Directory of the raft log and snapshots"))
	flags.Int("rtt-millisecond", 100, cmdUtil.WrapString("(raft mode) The average round trip time in milliseconds between two replicas. Election and heartbeat timeouts are derived from it"))
	flags.Int("snapshot-entries", 1000, cmdUtil.WrapString("(raft mode) Applied log entries between automatic snapshots, 0 disables them (not recommended)"))
	flags.Int("compaction-overhead", 500, cmdUtil.WrapString("(raft mode) Log entries kept after a snapshot. Recommended value is about 1/2 of snapshot-entries"))

	// ambient
	flags.String("log-level", "info", cmdUtil.WrapString("The level at which logs are written (debug, info, warn, error)"))
	flags.String("metrics-endpoint", "", cmdUtil.WrapString("Address of the Prometheus /metrics endpoint (e.g. :9100), empty disables it"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	c := serveConfig
	var err error

	c.Field = viper.GetString("field")
	if c.Mode, err = passport.ParseMode(viper.GetString("mode")); err != nil {
		return err
	}

	c.Server = common.ServerConfig{
		Transport: common.ServerTransportConfig{
			Endpoint:       viper.GetString("endpoint"),
			WorkersPerConn: viper.GetInt("workers"),
			SocketConf: common.SocketConf{
				TCPNoDelay:   true,
				TCPLingerSec: -1,
			},
		},
		TimeoutSecond: viper.GetInt64("timeout"),
		LogLevel:      viper.GetString("log-level"),
	}
	c.Client = common.ClientConfig{
		TimeoutSecond: int(c.Server.TimeoutSecond),
		Transport: common.ClientTransportConfig{
			RetryCount:             1,
			ConnectionsPerEndpoint: 1,
			SocketConf: common.SocketConf{
				TCPNoDelay:   true,
				TCPLingerSec: -1,
			},
		},
	}

	c.Mesh = path.DefaultConfig()
	c.Mesh.BindAddr = viper.GetString("gossip-bind")
	c.Mesh.BindPort = viper.GetInt("gossip-port")
	c.Mesh.AdvertiseAddr = viper.GetString("gossip-advertise")
	c.Mesh.AdvertisePort = viper.GetInt("gossip-advertise-port")
	c.Mesh.Join = cmdUtil.SplitList(viper.GetString("join"))

	c.Seed = seed.DefaultConfig()
	c.Seed.WriteQuorum = viper.GetInt("write-quorum")
	c.Seed.ReadQuorum = viper.GetInt("read-quorum")
	c.Seed.Timeout = c.Server.Timeout()
	c.Seed.AntiEntropyInterval = viper.GetDuration("anti-entropy-interval")
	c.Seed.TickInterval = viper.GetDuration("tick-interval")
	c.Seed.MerkleDepth = viper.GetInt("merkle-depth")
	c.Seed.VirtualNodes = viper.GetInt("virtual-nodes")
	if err := c.Seed.Validate(); err != nil {
		return err
	}

	c.TombstoneTTL = viper.GetDuration("tombstone-ttl")
	c.MetricsEndpoint = viper.GetString("metrics-endpoint")

	c.Advertise = advertiseAddr(viper.GetString("advertise"), c.Server.Transport.Endpoint, c.Mesh.AdvertiseAddr)

	if c.Mode == passport.ModeRaft {
		if err := processRaftConfig(c); err != nil {
			return err
		}
	}
	return nil
}

// processRaftConfig parses the raft group of the Field
func processRaftConfig(c *Config) error {
	c.Raft = common.RaftConfig{
		RTTMillisecond:     viper.GetUint64("rtt-millisecond"),
		SnapshotEntries:    viper.GetUint64("snapshot-entries"),
		CompactionOverhead: viper.GetUint64("compaction-overhead"),
		DataDir:            viper.GetString("data-dir"),
	}

	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required in raft mode")
	}
	c.Raft.ReplicaID = replicaID(id)

	members := cmdUtil.SplitList(viper.GetString("cluster-members"))
	if len(members) == 0 {
		return fmt.Errorf("cluster-members is required in raft mode")
	}
	c.Raft.ClusterMembers = make(map[uint64]string, len(members))
	for _, member := range members {
		name, addr, ok := strings.Cut(member, "=")
		if !ok || name == "" || addr == "" {
			return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		c.Raft.ClusterMembers[replicaID(name)] = addr
	}

	return c.Raft.Validate()
}

// replicaID maps a replica name onto the non-zero id raft expects
func replicaID(name string) uint64 {
	return max(1, util.HashKey(name))
}

// advertiseAddr returns the RPC address other Seeds should dial. Unix sockets
// and explicit hosts are used as they are; a wildcard host is replaced with
// host. An empty result means the host is not known yet.
func advertiseAddr(advertise, endpoint, host string) string {
	if advertise != "" {
		return advertise
	}
	h, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		// unix socket path
		return endpoint
	}
	if ip := net.ParseIP(h); h != "" && (ip == nil || !ip.IsUnspecified()) {
		return endpoint
	}
	if host == "" {
		return ""
	}
	return net.JoinHostPort(host, port)
}
