package common

import (
	"fmt"
	"strings"
)

// ReplicaRoot is the Merkle root one replica of a Field reported
type ReplicaRoot struct {
	SeedID  string `json:"seed"`
	Addr    string `json:"addr"`
	Root    string `json:"root,omitempty"`
	Records uint64 `json:"records"`
	Match   bool   `json:"match"`
	Err     string `json:"err,omitempty"`
}

// VerifyReport compares the Merkle root of a Seed with every live replica of its Field
type VerifyReport struct {
	Field      string        `json:"field"`
	SeedID     string        `json:"seed"`
	Root       string        `json:"root"`
	Records    uint64        `json:"records"`
	Replicas   []ReplicaRoot `json:"replicas"`
	Consistent bool          `json:"consistent"`
}

func (r *VerifyReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "field %s, %d replica(s) besides %s\n", r.Field, len(r.Replicas), r.SeedID)
	fmt.Fprintf(&sb, "  %-36s  %s  (%d records, local)\n", r.SeedID, r.Root, r.Records)
	for _, rep := range r.Replicas {
		switch {
		case rep.Err != "":
			fmt.Fprintf(&sb, "  %-36s  unreachable: %s\n", rep.SeedID, rep.Err)
		case rep.Match:
			fmt.Fprintf(&sb, "  %-36s  %s  (%d records)\n", rep.SeedID, rep.Root, rep.Records)
		default:
			fmt.Fprintf(&sb, "  %-36s  %s  (%d records, DIVERGED)\n", rep.SeedID, rep.Root, rep.Records)
		}
	}
	if r.Consistent {
		sb.WriteString("consistent")
	} else {
		sb.WriteString("inconsistent")
	}
	return sb.String()
}
