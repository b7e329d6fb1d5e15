package dstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/lib/store/dstore/internal"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.Errorf(store.RetCInternalError, "invalid Query type: %T", itf)
	}

	if feat := q.Type.ToDBFeature(); feat != 0 && !fsm.database.SupportsFeature(feat) {
		return nil, store.Errorf(store.RetCUnsupportedOperation, "%s operation is not supported", q.Type)
	}

	switch q.Type {
	case internal.QueryTGet:
		if len(q.Keys) != 1 {
			return nil, store.NewError(store.RetCInvalidOperation, "Get needs exactly one key")
		}
		val, ok := fsm.database.Get(q.Keys[0])
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTHas:
		if len(q.Keys) != 1 {
			return nil, store.NewError(store.RetCInvalidOperation, "Has needs exactly one key")
		}
		return fsm.database.Has(q.Keys[0]), nil
	case internal.QueryTExists:
		var count uint64
		for _, key := range q.Keys {
			if fsm.database.Has(key) {
				count++
			}
		}
		return count, nil
	case internal.QueryTScan:
		var records []db.Record
		fsm.database.Range(func(r db.Record) bool {
			records = append(records, r)
			return true
		})
		return records, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.Errorf(store.RetCInvalidOperation, "unknown Query operation: %d", q.Type)
	}
}

// writeIndex derives the write index of a command. Every replica applies the
// log in the same order, so the result is the same on every replica.
func (fsm *KVStateMachine) writeIndex(cmd *internal.Command) uint64 {
	return max(cmd.Stamp, fsm.database.WriteIdx()+1)
}

func countResult(n uint64) sm.Result {
	return sm.Result{Value: uint64(store.RetCSuccess), Data: binary.BigEndian.AppendUint64(nil, n)}
}

func errResult(code store.RetCode, format string, args ...any) sm.Result {
	return sm.Result{Value: uint64(code), Data: []byte(fmt.Sprintf(format, args...))}
}

// apply executes a single command on the database
func (fsm *KVStateMachine) apply(cmd *internal.Command) sm.Result {
	feat, err := cmd.Type.ToDBFeature()
	if err != nil {
		return errResult(store.RetCInvalidOperation, "unknown Command operation: %s", cmd.Type)
	}
	if !fsm.database.SupportsFeature(feat) {
		return errResult(store.RetCUnsupportedOperation, "%s operation is not supported", cmd.Type)
	}
	if cmd.Type != internal.CommandTTick && cmd.Type != internal.CommandTDelete && len(cmd.Keys) != 1 {
		return errResult(store.RetCInvalidOperation, "%s needs exactly one key, got %d", cmd.Type, len(cmd.Keys))
	}

	idx := fsm.writeIndex(cmd)
	switch cmd.Type {
	case internal.CommandTSet:
		fsm.database.Set(cmd.Key(), cmd.Value, idx)
	case internal.CommandTSetE:
		fsm.database.SetE(cmd.Key(), cmd.Value, idx, cmd.ExpireIn, cmd.DeleteIn)
	case internal.CommandTSetIfUnset:
		fsm.database.SetEIfUnset(cmd.Key(), cmd.Value, idx, cmd.ExpireIn, cmd.DeleteIn)
	case internal.CommandTAppend:
		return countResult(fsm.database.Append(cmd.Key(), cmd.Value, idx))
	case internal.CommandTExpire:
		fsm.database.Expire(cmd.Key(), idx)
	case internal.CommandTDelete:
		var removed uint64
		for _, key := range cmd.Keys {
			if fsm.database.Delete(key, idx) {
				removed++
			}
		}
		return countResult(removed)
	case internal.CommandTTick:
		fsm.database.SetWriteIdx(cmd.Stamp)
	}
	return sm.Result{Value: uint64(store.RetCSuccess)}
}

// Update handles write commands on the KVDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	cmd := internal.Command{}
	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = errResult(store.RetCInvalidOperation, "empty command ignored")
			continue
		}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = errResult(store.RetCInternalError, "failed to deserialize command: %v", err)
			continue
		}
		entries[idx].Result = fsm.apply(&cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot restores the database from a snapshot written by SaveSnapshot
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
