package lstore

import (
	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/hlc"
	"github.com/sphagnumdb/sphagnum/lib/store"
)

// LocalStore is a store.IStore over a single db.KVDB. Besides the store
// operations it gives the Seed access to the raw database to merge records of
// other replicas.
type LocalStore struct {
	db    db.KVDB
	clock *hlc.Clock
}

// NewLocalStore creates a new local store instance.
// Write indices are taken from clock, so the indices of different Seeds of
// a Field are comparable. A nil clock uses a clock reading the system time.
func NewLocalStore(factory store.DBFactory, clock *hlc.Clock) *LocalStore {
	if clock == nil {
		clock = hlc.New()
	}
	return &LocalStore{
		db:    factory(),
		clock: clock,
	}
}

// DB returns the underlying database
func (s *LocalStore) DB() db.KVDB {
	return s.db
}

// Clock returns the clock stamping the writes of this store
func (s *LocalStore) Clock() *hlc.Clock {
	return s.clock
}

// nextIndex returns the write index for the next write.
//
// Thread-safety: This method is thread-safe, the clock serializes concurrent callers.
func (s *LocalStore) nextIndex() uint64 {
	return s.clock.Now()
}

func (s *LocalStore) require(feature db.Feature) error {
	if !s.db.SupportsFeature(feature) {
		return store.Errorf(store.RetCUnsupportedOperation, "%s operation is not supported", feature)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *LocalStore) Set(key string, value []byte) error {
	if err := s.require(db.FeatureSet); err != nil {
		return err
	}
	s.db.Set(key, value, s.nextIndex())
	return nil
}

func (s *LocalStore) SetE(key string, value []byte, expireIn, deleteIn uint64) error {
	if err := s.require(db.FeatureSetE); err != nil {
		return err
	}
	s.db.SetE(key, value, s.nextIndex(), expireIn, deleteIn)
	return nil
}

func (s *LocalStore) SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) error {
	if err := s.require(db.FeatureSetEIfUnset); err != nil {
		return err
	}
	s.db.SetEIfUnset(key, value, s.nextIndex(), expireIn, deleteIn)
	return nil
}

func (s *LocalStore) Append(key string, value []byte) (uint64, error) {
	if err := s.require(db.FeatureAppend); err != nil {
		return 0, err
	}
	return s.db.Append(key, value, s.nextIndex()), nil
}

func (s *LocalStore) Expire(key string) error {
	if err := s.require(db.FeatureExpire); err != nil {
		return err
	}
	s.db.Expire(key, s.nextIndex())
	return nil
}

func (s *LocalStore) Delete(keys ...string) (uint64, error) {
	if err := s.require(db.FeatureDelete); err != nil {
		return 0, err
	}
	var removed uint64
	for _, key := range keys {
		if s.db.Delete(key, s.nextIndex()) {
			removed++
		}
	}
	return removed, nil
}

func (s *LocalStore) Exists(keys ...string) (uint64, error) {
	if err := s.require(db.FeatureHas); err != nil {
		return 0, err
	}
	var count uint64
	for _, key := range keys {
		if s.db.Has(key) {
			count++
		}
	}
	return count, nil
}

func (s *LocalStore) Get(key string) ([]byte, bool, error) {
	if err := s.require(db.FeatureGet); err != nil {
		return nil, false, err
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *LocalStore) Has(key string) (bool, error) {
	if err := s.require(db.FeatureHas); err != nil {
		return false, err
	}
	return s.db.Has(key), nil
}

func (s *LocalStore) Scan(fn func(record db.Record) bool) error {
	if err := s.require(db.FeatureRange); err != nil {
		return err
	}
	s.db.Range(fn)
	return nil
}

func (s *LocalStore) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

// --------------------------------------------------------------------------
// Replication (used by the Seed)
// --------------------------------------------------------------------------

// Lookup returns the raw records of the given keys; missing keys are skipped
func (s *LocalStore) Lookup(keys ...string) []db.Record {
	out := make([]db.Record, 0, len(keys))
	for _, key := range keys {
		if r, ok := s.db.Lookup(key); ok {
			out = append(out, r)
		}
	}
	return out
}

// Merge applies records of another replica and returns how many were newer than
// the local state. The clock is advanced past every merged index.
func (s *LocalStore) Merge(records ...db.Record) (int, error) {
	if err := s.require(db.FeatureMerge); err != nil {
		return 0, err
	}
	applied := 0
	for _, r := range records {
		s.clock.Observe(r.Index)
		if s.db.Merge(r) {
			applied++
		}
	}
	return applied, nil
}

// Tick advances the write index of the database to the current clock time so
// TTL marks expire without writes.
func (s *LocalStore) Tick() {
	s.db.SetWriteIdx(s.clock.Now())
}

// Close closes the underlying database
func (s *LocalStore) Close() error {
	return s.db.Close()
}
