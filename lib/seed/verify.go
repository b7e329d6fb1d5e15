package seed

import (
	"context"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/merkle"
	"github.com/sphagnumdb/sphagnum/rpc/client"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

func (s *Seed) buildTree() (*merkle.Tree, error) {
	return merkle.Build(s.config.MerkleDepth, s.store.Scan)
}

// Root returns the Merkle root of the local replica and the number of records under it
func (s *Seed) Root() (merkle.Hash, int, error) {
	tree, err := s.buildTree()
	if err != nil {
		return merkle.Hash{}, 0, err
	}
	return tree.Root(), tree.Len(), nil
}

// Prove returns the proof for key against the current root of the local replica.
// The raw record of key is returned as well, nil if the replica has none.
func (s *Seed) Prove(key string) (*merkle.Proof, merkle.Hash, *db.Record, error) {
	var record *db.Record
	tree, err := merkle.Build(s.config.MerkleDepth, func(fn func(db.Record) bool) error {
		return s.store.Scan(func(r db.Record) bool {
			if r.Key == key {
				c := r
				c.Value = append([]byte(nil), r.Value...)
				record = &c
			}
			return fn(r)
		})
	})
	if err != nil {
		return nil, merkle.Hash{}, nil, err
	}
	return tree.Prove(key), tree.Root(), record, nil
}

// VerifyField compares the root of the local replica with the roots of all other
// live replicas of the Field. Replicas that do not answer before ctx is done are
// reported with an error and make the Field inconsistent.
func (s *Seed) VerifyField(ctx context.Context) (*common.VerifyReport, error) {
	root, n, err := s.Root()
	if err != nil {
		return nil, err
	}

	peers := s.fieldPeers()
	report := &common.VerifyReport{
		Field:      s.local.Field,
		SeedID:     s.local.SeedID,
		Root:       root.String(),
		Records:    uint64(n),
		Replicas:   make([]common.ReplicaRoot, len(peers)),
		Consistent: true,
	}

	type answer struct {
		i    int
		root common.ReplicaRoot
	}
	answers := make(chan answer, len(peers))
	for i, p := range peers {
		report.Replicas[i] = common.ReplicaRoot{SeedID: p.SeedID, Addr: p.RPCAddr, Err: "no answer"}
		go func() {
			rr := common.ReplicaRoot{SeedID: p.SeedID, Addr: p.RPCAddr}
			err := s.call(p, func(c *client.Client) error {
				remote, records, err := c.Digest()
				if err != nil {
					return err
				}
				rr.Root = remote.String()
				rr.Records = records
				rr.Match = remote == root
				return nil
			})
			if err != nil {
				rr.Err = err.Error()
			}
			answers <- answer{i, rr}
		}()
	}

wait:
	for range peers {
		select {
		case a := <-answers:
			report.Replicas[a.i] = a.root
		case <-ctx.Done():
			break wait
		}
	}

	for _, rr := range report.Replicas {
		if !rr.Match {
			report.Consistent = false
		}
	}
	return report, nil
}
