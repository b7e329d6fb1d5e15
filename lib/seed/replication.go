package seed

import (
	"time"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/merkle"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/rpc/client"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/server"
)

// --------------------------------------------------------------------------
// Quorum Writes
// --------------------------------------------------------------------------

// quorumWrite applies a write to the local replica and pushes the resulting
// records to the other replicas of the Field. The write succeeds once the
// write quorum (this Seed included) acknowledged it.
func (s *Seed) quorumWrite(req *common.Message) *common.Message {
	resp := s.adapter.Handle(req, s.replica)
	if resp.Err != "" {
		return resp
	}

	records := s.replica.Lookup(server.Keys(req)...)
	if len(records) == 0 {
		return resp
	}
	if err := s.replicate(records); err != nil {
		return errorResponse(err)
	}
	return resp
}

// replicate pushes records to all replicas of the Field and waits for the write quorum
func (s *Seed) replicate(records []db.Record) error {
	peers := s.fieldPeers()
	need := s.config.writeQuorum(len(peers) + 1)
	acks := 1
	if acks >= need && len(peers) == 0 {
		return nil
	}

	results := make(chan error, len(peers))
	for _, p := range peers {
		go func() {
			results <- s.call(p, func(c *client.Client) error {
				_, err := c.Replicate(records)
				return err
			})
		}()
	}

	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	var lastErr error
	for received := 0; received < len(peers) && acks < need; received++ {
		select {
		case err := <-results:
			if err != nil {
				lastErr = err
				s.metrics.replicationFailures.Inc()
				log.Debugf("replication to a replica of %s failed: %v", s.local.Field, err)
				continue
			}
			acks++
		case <-timer.C:
			return store.Errorf(store.RetCQuorumNotReached,
				"%d of %d replicas acknowledged within %s", acks, need, s.config.Timeout)
		}
	}
	if acks < need {
		return store.Errorf(store.RetCQuorumNotReached,
			"%d of %d replicas acknowledged (last error: %v)", acks, need, lastErr)
	}
	return nil
}

// --------------------------------------------------------------------------
// Quorum Reads
// --------------------------------------------------------------------------

// quorumRead answers a read from the local replica after merging the records of
// ReadQuorum-1 other replicas into it. Replicas that answered with older
// records are repaired in the background.
func (s *Seed) quorumRead(req *common.Message) *common.Message {
	if need := s.config.readQuorum() - 1; need > 0 {
		if err := s.readRepair(server.Keys(req), need); err != nil {
			return errorResponse(err)
		}
	}
	return s.adapter.Handle(req, s.replica)
}

type fetchResult struct {
	peer    passport.Passport
	records []db.Record
	err     error
}

func (s *Seed) readRepair(keys []string, need int) error {
	peers := s.shuffle(s.fieldPeers())
	if len(peers) < need {
		return store.Errorf(store.RetCQuorumNotReached,
			"read quorum needs %d other replicas, field %s has %d", need, s.local.Field, len(peers))
	}

	results := make(chan fetchResult, len(peers))
	for _, p := range peers {
		go func() {
			res := fetchResult{peer: p}
			res.err = s.call(p, func(c *client.Client) (err error) {
				res.records, err = c.Fetch(keys...)
				return err
			})
			results <- res
		}()
	}

	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	var answered []fetchResult
	var lastErr error
	for received := 0; received < len(peers) && len(answered) < need; received++ {
		select {
		case res := <-results:
			if res.err != nil {
				lastErr = res.err
				continue
			}
			if _, err := s.replica.Merge(res.records...); err != nil {
				return err
			}
			answered = append(answered, res)
		case <-timer.C:
			return store.Errorf(store.RetCQuorumNotReached,
				"%d of %d replicas answered within %s", len(answered), need, s.config.Timeout)
		}
	}
	if len(answered) < need {
		return store.Errorf(store.RetCQuorumNotReached,
			"%d of %d replicas answered (last error: %v)", len(answered), need, lastErr)
	}

	current := s.replica.Lookup(keys...)
	for _, res := range answered {
		if stale := staleRecords(current, res.records); len(stale) > 0 {
			s.metrics.readRepairs.Add(len(stale))
			go s.repair(res.peer, stale)
		}
	}
	return nil
}

// staleRecords returns the records of current the replica holds in an older version or not at all
func staleRecords(current, replica []db.Record) []db.Record {
	have := make(map[string]uint64, len(replica))
	for _, r := range replica {
		have[r.Key] = r.Index
	}
	var out []db.Record
	for _, r := range current {
		if idx, ok := have[r.Key]; !ok || idx < r.Index {
			out = append(out, r)
		}
	}
	return out
}

func (s *Seed) repair(p passport.Passport, records []db.Record) {
	err := s.call(p, func(c *client.Client) error {
		_, err := c.Replicate(records)
		return err
	})
	if err != nil {
		log.Debugf("read repair of %d records on %s failed: %v", len(records), p.SeedID, err)
	}
}

// --------------------------------------------------------------------------
// Peer Requests
// --------------------------------------------------------------------------

// handlePeerOp serves the replication traffic of the other replicas of the Field
func (s *Seed) handlePeerOp(req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTPeerReplicate:
		if s.replica == nil {
			return common.NewReplicateResponse(0, store.NewError(store.RetCUnsupportedOperation,
				"raft fields replicate through their raft group"))
		}
		applied, err := s.replica.Merge(req.Records...)
		return common.NewReplicateResponse(uint64(applied), err)

	case common.MsgTPeerFetch:
		records, err := s.lookup(req.Keys...)
		return common.NewFetchResponse(records, err)

	case common.MsgTPeerDigest:
		tree, err := s.buildTree()
		if err != nil {
			return common.NewDigestResponse(nil, 0, err)
		}
		root := tree.Root()
		return common.NewDigestResponse(root[:], uint64(tree.Len()), nil)

	case common.MsgTPeerLeaves:
		tree, err := s.buildTree()
		if err != nil {
			return common.NewLeavesResponse(nil, 0, err)
		}
		return common.NewLeavesResponse(client.EncodeLeaves(tree.Leaves()), uint64(tree.Depth()), nil)

	case common.MsgTPeerSyncBuckets:
		records, err := s.bucketRecords(req.Buckets)
		return common.NewSyncBucketsResponse(records, err)

	default:
		return errorResponse(store.Errorf(store.RetCUnsupportedOperation, "unsupported message type: %s", req.MsgType))
	}
}

// lookup returns the raw records of keys, missing keys are skipped
func (s *Seed) lookup(keys ...string) ([]db.Record, error) {
	if s.replica != nil {
		return s.replica.Lookup(keys...), nil
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	return s.collect(func(r db.Record) bool {
		_, ok := want[r.Key]
		return ok
	})
}

// bucketRecords returns all records that fall into one of the buckets
func (s *Seed) bucketRecords(buckets []uint32) ([]db.Record, error) {
	want := make(map[int]struct{}, len(buckets))
	for _, b := range buckets {
		want[int(b)] = struct{}{}
	}
	return s.collect(func(r db.Record) bool {
		_, ok := want[merkle.BucketOf(r.Key, s.config.MerkleDepth)]
		return ok
	})
}

// collect scans the store and copies the records matching keep
func (s *Seed) collect(keep func(db.Record) bool) ([]db.Record, error) {
	var out []db.Record
	err := s.store.Scan(func(r db.Record) bool {
		if keep(r) {
			if r.Value != nil {
				r.Value = append([]byte{}, r.Value...)
			}
			out = append(out, r)
		}
		return true
	})
	return out, err
}
