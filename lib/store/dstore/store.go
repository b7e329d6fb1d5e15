package dstore

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/hlc"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/lib/store/dstore/internal"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// IdleTickInterval is the time without proposals after which the leader
// proposes a clock tick. Writes advance the write index themselves.
const IdleTickInterval = time.Second

// DistributedStore is a store.IStore replicated with raft. All replicas of a
// Field form one raft shard.
type DistributedStore struct {
	nh        *dragonboat.NodeHost
	shardID   uint64
	replicaID uint64
	cs        *client.Session
	timeout   time.Duration
	clock     *hlc.Clock

	// leaderOf reports the leader of a raft shard, nh.GetLeaderID outside of tests
	leaderOf func(shardID uint64) (leaderID uint64, term uint64, valid bool, err error)
	// lastProposal is the unix nano time of the last committed proposal of this replica
	lastProposal atomic.Int64
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The clock stamps proposed commands; a nil clock reads the system time.
// replicaID is the id of the local replica in the raft shard.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID, replicaID uint64, timeout time.Duration, clock *hlc.Clock) *DistributedStore {
	if clock == nil {
		clock = hlc.New()
	}
	return &DistributedStore{
		nh:        nh,
		shardID:   shardID,
		replicaID: replicaID,
		cs:        nh.GetNoOPSession(shardID),
		timeout:   timeout,
		clock:     clock,
		leaderOf:  nh.GetLeaderID,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write stamps and serializes a Command and sends it via SyncPropose.
// It returns the result data on success or a *store.Error.
func (s *DistributedStore) write(cmd internal.Command) ([]byte, error) {
	cmd.Stamp = s.clock.Now()
	data := cmd.Serialize()

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, data)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		s.lastProposal.Store(time.Now().UnixNano())
		if res.Value != uint64(store.RetCSuccess) {
			return nil, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, store.NewError(store.RetCInternalError, "timeout")
}

// writeCount is write for commands returning a count
func (s *DistributedStore) writeCount(cmd internal.Command) (uint64, error) {
	data, err := s.write(cmd)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, store.Errorf(store.RetCInternalError, "unexpected result of %s: %d bytes", cmd.Type, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// read is a generic helper function queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// Is the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](r *DistributedStore, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the state machine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return zero, se
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.Errorf(store.RetCInternalError, "unexpected type: received %T, expected %T", res, zero)
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *DistributedStore) Set(key string, value []byte) error {
	_, err := s.write(internal.Command{
		Type:  internal.CommandTSet,
		Keys:  []string{key},
		Value: value,
	})
	return err
}

func (s *DistributedStore) SetE(key string, value []byte, expireIn, deleteIn uint64) error {
	_, err := s.write(internal.Command{
		Type:     internal.CommandTSetE,
		Keys:     []string{key},
		Value:    value,
		ExpireIn: expireIn,
		DeleteIn: deleteIn,
	})
	return err
}

func (s *DistributedStore) SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) error {
	_, err := s.write(internal.Command{
		Type:     internal.CommandTSetIfUnset,
		Keys:     []string{key},
		Value:    value,
		ExpireIn: expireIn,
		DeleteIn: deleteIn,
	})
	return err
}

func (s *DistributedStore) Append(key string, value []byte) (uint64, error) {
	return s.writeCount(internal.Command{
		Type:  internal.CommandTAppend,
		Keys:  []string{key},
		Value: value,
	})
}

func (s *DistributedStore) Expire(key string) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTExpire,
		Keys: []string{key},
	})
	return err
}

func (s *DistributedStore) Delete(keys ...string) (uint64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.writeCount(internal.Command{
		Type: internal.CommandTDelete,
		Keys: keys,
	})
}

func (s *DistributedStore) Exists(keys ...string) (uint64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return read[uint64](s, internal.Query{
		Type: internal.QueryTExists,
		Keys: keys,
	}, false)
}

func (s *DistributedStore) Get(key string) ([]byte, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Keys: []string{key},
	}, false)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *DistributedStore) Has(key string) (bool, error) {
	return read[bool](s, internal.Query{
		Type: internal.QueryTHas,
		Keys: []string{key},
	}, false)
}

func (s *DistributedStore) Scan(fn func(record db.Record) bool) error {
	records, err := read[[]db.Record](s, internal.Query{Type: internal.QueryTScan}, false)
	if err != nil {
		return err
	}
	for _, r := range records {
		if !fn(r) {
			return nil
		}
	}
	return nil
}

func (s *DistributedStore) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}

// Tick proposes the current clock time as the write index of the Field, so
// TTL marks expire on every replica at the same log position. Only the leader
// proposes ticks, and only after IdleTickInterval without proposals.
func (s *DistributedStore) Tick() error {
	if !s.shouldTick(time.Now()) {
		return nil
	}
	_, err := s.write(internal.Command{Type: internal.CommandTTick})
	return err
}

func (s *DistributedStore) shouldTick(now time.Time) bool {
	if now.Sub(time.Unix(0, s.lastProposal.Load())) < IdleTickInterval {
		return false
	}
	leader, _, valid, err := s.leaderOf(s.shardID)
	return err == nil && valid && leader == s.replicaID
}
