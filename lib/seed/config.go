package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sphagnumdb/sphagnum/lib/merkle"
	"github.com/sphagnumdb/sphagnum/lib/ring"
)

// Config holds the replication parameters of a Seed
type Config struct {
	// WriteQuorum is the number of replicas (the local one included) that must
	// acknowledge a write. 0 selects a majority of the live Field members.
	WriteQuorum int
	// ReadQuorum is the number of replicas consulted by a read. 0 selects 1 (local reads).
	ReadQuorum int
	// Timeout bounds requests to other Seeds
	Timeout time.Duration
	// AntiEntropyInterval is the time between anti-entropy rounds, 0 disables them
	AntiEntropyInterval time.Duration
	// MerkleDepth is the depth of the Merkle trees (2^depth buckets)
	MerkleDepth int
	// TickInterval is the time between clock ticks that let TTLs expire without writes
	TickInterval time.Duration
	// VirtualNodes is the number of ring positions per Field
	VirtualNodes int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Timeout:             5 * time.Second,
		AntiEntropyInterval: 10 * time.Second,
		MerkleDepth:         merkle.DefaultDepth,
		TickInterval:        100 * time.Millisecond,
		VirtualNodes:        ring.DefaultVirtualNodes,
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch {
	case c.WriteQuorum < 0:
		return fmt.Errorf("write quorum must not be negative")
	case c.ReadQuorum < 0:
		return fmt.Errorf("read quorum must not be negative")
	case c.MerkleDepth < 0 || c.MerkleDepth > merkle.MaxDepth:
		return fmt.Errorf("%w: %d (0..%d)", merkle.ErrDepth, c.MerkleDepth, merkle.MaxDepth)
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive")
	case c.AntiEntropyInterval < 0 || c.TickInterval < 0:
		return fmt.Errorf("intervals must not be negative")
	}
	return nil
}

// writeQuorum returns the acknowledgements a write needs with n live Field members
func (c *Config) writeQuorum(n int) int {
	if c.WriteQuorum > 0 {
		return c.WriteQuorum
	}
	return n/2 + 1
}

// readQuorum returns the replicas a read consults
func (c *Config) readQuorum() int {
	return max(1, c.ReadQuorum)
}

func quorumString(q int, def string) string {
	if q == 0 {
		return def
	}
	return strconv.Itoa(q)
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\nSEED\n")
	field := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-24s: %s\n", name, value))
	}
	field("Write Quorum", quorumString(c.WriteQuorum, "majority"))
	field("Read Quorum", quorumString(c.ReadQuorum, "1"))
	field("Timeout", c.Timeout.String())
	field("Anti-Entropy Interval", c.AntiEntropyInterval.String())
	field("Merkle Depth", strconv.Itoa(c.MerkleDepth))
	field("Tick Interval", c.TickInterval.String())
	field("Virtual Nodes", strconv.Itoa(c.VirtualNodes))
	return sb.String()
}
