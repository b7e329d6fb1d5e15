package internal

import (
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/db/util"
)

// --------------------------------------------------------------------------
// Event Types are used to signal changes to the GC of a shard
// --------------------------------------------------------------------------

type EventType int

const (
	EventTWrite EventType = iota
	EventTDelete
)

func (e EventType) String() string {
	switch e {
	case EventTWrite:
		return "Write"
	case EventTDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

type Event struct {
	Type EventType
	Key  string
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Key: %q}", e.Type, e.Key)
}

// --------------------------------------------------------------------------
// Entry Type (value with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with its metadata. The byte slice of an entry is never
// modified in place once stored, so readers may hand it out after copying.
type Entry struct {
	Value     []byte
	ExpireAt  uint64 // 0 = never
	DeleteAt  uint64 // 0 = never
	Index     uint64 // write index of the last change
	Tombstone bool   // set by Delete
}

// TTLInfo returns whether the entry is expired and whether it is deleted at the given write index
func (e Entry) TTLInfo(writeIdx uint64) (isExpired bool, isDeleted bool) {
	isExpired = e.ExpireAt != 0 && writeIdx >= e.ExpireAt
	isDeleted = e.DeleteAt != 0 && writeIdx >= e.DeleteAt
	return
}

// Present reports whether the entry is visible to Has at the given write index
func (e Entry) Present(writeIdx uint64) bool {
	_, isDeleted := e.TTLInfo(writeIdx)
	return !e.Tombstone && !isDeleted
}

// HasTTL reports whether the GC needs to track this entry
func (e Entry) HasTTL() bool {
	return e.ExpireAt != 0 || e.DeleteAt != 0
}

// Record converts the entry into a db.Record, copying the value
func (e Entry) Record(key string) db.Record {
	var value []byte
	if e.Value != nil {
		value = make([]byte, len(e.Value))
		copy(value, e.Value)
	}
	return db.Record{
		Key:       key,
		Value:     value,
		ExpireAt:  e.ExpireAt,
		DeleteAt:  e.DeleteAt,
		Index:     e.Index,
		Tombstone: e.Tombstone,
	}
}

// EntryFromRecord converts a db.Record into an entry, copying the value
func EntryFromRecord(r db.Record) Entry {
	var value []byte
	if r.Value != nil && !r.Tombstone {
		value = make([]byte, len(r.Value))
		copy(value, r.Value)
	}
	return Entry{
		Value:     value,
		ExpireAt:  r.ExpireAt,
		DeleteAt:  r.DeleteAt,
		Index:     r.Index,
		Tombstone: r.Tombstone,
	}
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// The heaps are owned by the GC goroutine of the shard and must not be touched elsewhere.
type Shard struct {
	Data       *xsync.MapOf[string, Entry]
	ExpireHeap *util.MapHeap[string]
	DeleteHeap *util.MapHeap[string]
	Events     *xsync.MPMCQueueOf[Event]

	// Rescan is set when an event could not be queued; the GC then rebuilds
	// its heaps from the data map instead of relying on events.
	Rescan atomic.Bool
}

// NewShard creates a new shard with an event queue of the given capacity
func NewShard(queueSize int) *Shard {
	return &Shard{
		Data:       xsync.NewMapOf[string, Entry](),
		ExpireHeap: util.NewMapHeap[string](),
		DeleteHeap: util.NewMapHeap[string](),
		Events:     xsync.NewMPMCQueueOf[Event](queueSize),
	}
}

// Notify queues a GC event without blocking the writer
func (s *Shard) Notify(e Event) {
	if !s.Events.TryEnqueue(e) {
		s.Rescan.Store(true)
	}
}

// GetShard returns the shard responsible for a key
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func GetShard[T any](key string, shards []*T) *T {
	return shards[util.ShardIndex(key, len(shards))]
}
