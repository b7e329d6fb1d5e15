package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for raft Fields)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// RaftConfig holds the Dragonboat parameters of a raft Field
type RaftConfig struct {
	ReplicaID          uint64
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ClusterMembers     map[uint64]string // replica id -> raft address
}

// ToDragonboatConfig converts the RaftConfig to a Dragonboat shard Config
func (c *RaftConfig) ToDragonboatConfig(shardID uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *RaftConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// Validate checks that the local replica is part of the cluster
func (c *RaftConfig) Validate() error {
	if c.ReplicaID == 0 {
		return fmt.Errorf("raft replica id must be greater than 0")
	}
	if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
		return fmt.Errorf("raft replica %d is not part of the cluster members", c.ReplicaID)
	}
	if c.RTTMillisecond == 0 {
		return fmt.Errorf("raft rtt must be greater than 0")
	}
	return nil
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf holds socket options applied to TCP connections
type SocketConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative values keep the OS default
	WriteBufferSize int
	ReadBufferSize  int
}

// ServerTransportConfig configures a server transport
type ServerTransportConfig struct {
	SocketConf
	Endpoint       string
	BufferSize     int // size of the pooled frame buffers
	WorkersPerConn int // concurrent requests per connection
}

// ClientTransportConfig configures a client transport
type ClientTransportConfig struct {
	SocketConf
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds the configuration of the RPC server of a Seed.
type ServerConfig struct {
	Transport ServerTransportConfig

	// Timeout of reads and writes on a connection, 0 = none
	TimeoutSecond int64

	// Logging configuration
	LogLevel string
}

// Timeout returns TimeoutSecond as a duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// configWriter formats configuration sections
type configWriter struct {
	sb strings.Builder
}

func (w *configWriter) section(title string) {
	w.sb.WriteString("\n")
	w.sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func (w *configWriter) field(name, value string) {
	w.sb.WriteString(fmt.Sprintf("  %-24s: %s\n", name, value))
}

func (w *configWriter) String() string {
	return w.sb.String()
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var w configWriter

	w.section("RPC Server")
	w.field("Endpoint", c.Transport.Endpoint)
	w.field("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	w.field("Workers Per Connection", strconv.Itoa(c.Transport.WorkersPerConn))

	w.section("Logging")
	w.field("Log Level", c.LogLevel)

	return w.String()
}

// String returns a formatted string representation of the raft configuration
func (c *RaftConfig) String() string {
	var w configWriter

	w.section("Raft")
	w.field("Node ID", strconv.FormatUint(c.ReplicaID, 10))
	w.field("RAFT Address", c.ClusterMembers[c.ReplicaID])
	w.field("Round Trip Time", fmt.Sprintf("%d ms", c.RTTMillisecond))
	w.field("Election RTT", fmt.Sprintf("%d ms", c.RTTMillisecond*electionRTTFactor))
	w.field("Heartbeat RTT", fmt.Sprintf("%d ms", c.RTTMillisecond*heartbeatRTTFactor))
	w.field("Snapshot Entries", strconv.FormatUint(c.SnapshotEntries, 10))
	w.field("Compaction Overhead", strconv.FormatUint(c.CompactionOverhead, 10))
	w.field("Data Directory", c.DataDir)

	// Sort keys for consistent output
	keys := make([]uint64, 0, len(c.ClusterMembers))
	for k := range c.ClusterMembers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		w.field(fmt.Sprintf("Member %d", k), c.ClusterMembers[k])
	}
	return w.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport     ClientTransportConfig
	TimeoutSecond int
}

// Timeout returns TimeoutSecond as a duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var w configWriter

	w.section("Client Configuration")
	w.field("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	w.field("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	w.field("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	w.section("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		w.field(strconv.Itoa(i), endpoint)
	}

	return w.String()
}
