// Package lstore implements the local store.IStore of a Seed: a thin wrapper
// around any db.KVDB that stamps every write with a hybrid logical clock.
//
// Using clock timestamps as write indices makes the indices of different Seeds
// of one Field comparable, so records written on one Seed can be merged into
// another with last-writer-wins. Besides the store operations LocalStore offers
// the replication helpers the Seed needs: Lookup of raw records, Merge of
// records received from peers and Tick, which advances the database clock so
// expiry and deletion marks take effect without writes.
//
// Usage Example:
//
//	factory := func() db.KVDB { return moss.NewMossDB(nil) }
//	s := lstore.NewLocalStore(factory, hlc.New())
//
//	// store a value that expires after 5 minutes
//	err := s.SetE("session:123", sessionData, hlc.Ticks(5*time.Minute), 0)
//
//	value, exists, err := s.Get("session:123")
//
// Data is kept in memory only.
package lstore
