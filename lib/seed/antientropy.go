package seed

import (
	"fmt"

	"github.com/sphagnumdb/sphagnum/lib/merkle"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/rpc/client"
)

// AntiEntropy runs one synchronisation round with a random replica of the Field
// and returns the number of records that were repaired on either side.
// Raft fields and Seeds without replicas have nothing to do.
func (s *Seed) AntiEntropy() (int, error) {
	if s.replica == nil {
		return 0, nil
	}
	peers := s.shuffle(s.fieldPeers())
	if len(peers) == 0 {
		return 0, nil
	}
	return s.SyncWith(peers[0])
}

// SyncWith reconciles the local replica with the replica of p: the roots are
// compared, then the differing buckets are exchanged in both directions and
// merged with last-writer-wins.
func (s *Seed) SyncWith(p passport.Passport) (repaired int, err error) {
	if s.replica == nil {
		return 0, fmt.Errorf("raft fields replicate through their raft group")
	}
	if p.Field != s.local.Field {
		return 0, fmt.Errorf("seed %s serves field %s, not %s", p.SeedID, p.Field, s.local.Field)
	}
	s.metrics.antiEntropyRounds.Inc()

	err = s.call(p, func(c *client.Client) error {
		tree, err := s.buildTree()
		if err != nil {
			return err
		}
		remoteRoot, _, err := c.Digest()
		if err != nil {
			return err
		}
		if remoteRoot == tree.Root() {
			return nil
		}

		remoteLeaves, err := c.Leaves()
		if err != nil {
			return err
		}
		diff, err := merkle.DiffLeaves(tree.Leaves(), remoteLeaves)
		if err != nil {
			return err
		}
		buckets := make([]uint32, len(diff))
		for i, b := range diff {
			buckets[i] = uint32(b)
		}

		theirs, err := c.SyncBuckets(buckets)
		if err != nil {
			return err
		}
		ours, err := s.bucketRecords(buckets)
		if err != nil {
			return err
		}

		pulled, err := s.replica.Merge(theirs...)
		if err != nil {
			return err
		}
		repaired += pulled

		if len(ours) > 0 {
			pushed, err := c.Replicate(ours)
			if err != nil {
				return err
			}
			repaired += int(pushed)
		}

		log.Debugf("anti-entropy with %s: %d buckets differ, %d records repaired", p.SeedID, len(buckets), repaired)
		return nil
	})
	if err != nil {
		return repaired, fmt.Errorf("anti-entropy with %s: %w", p.SeedID, err)
	}
	s.metrics.repairedRecords.Add(repaired)
	return repaired, nil
}
