package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMoss Implementation = "moss"
)

// Feature represents engine capabilities as bit flags
type Feature uint64

const (
	FeatureSet            Feature = 1 << iota // Support for Set operations
	FeatureSetE                               // Support for SetE operations
	FeatureSetEIfUnset                        // Support for SetEIfUnset operations
	FeatureAppend                             // Support for Append operations
	FeatureGet                                // Support for Get operations
	FeatureExpire                             // Support for Expire operations
	FeatureDelete                             // Support for Delete operations
	FeatureHas                                // Support for Has operations
	FeatureMerge                              // Support for Lookup and Merge of raw records
	FeatureRange                              // Support for Range iteration
	FeatureSave                               // Support for Save operations
	FeatureLoad                               // Support for Load operations
	FeatureGarbageCollect                     // Support for background garbage collection
)

var featureNames = map[Feature]string{
	FeatureSet:            "Set",
	FeatureSetE:           "SetE",
	FeatureSetEIfUnset:    "SetEIfUnset",
	FeatureAppend:         "Append",
	FeatureGet:            "Get",
	FeatureExpire:         "Expire",
	FeatureDelete:         "Delete",
	FeatureHas:            "Has",
	FeatureMerge:          "Merge",
	FeatureRange:          "Range",
	FeatureSave:           "Save",
	FeatureLoad:           "Load",
	FeatureGarbageCollect: "GarbageCollect",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return "Unknown"
}

// Features splits a combined flag set into its single features, lowest bit first.
func (f Feature) Features() []Feature {
	var out []Feature
	for bit := Feature(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// Record is the raw, replicable state of a single key. Tombstones are records
// too: they carry the index of the delete so that an older write arriving
// later from another replica cannot bring the key back.
type Record struct {
	Key       string `json:"key"`
	Value     []byte `json:"value,omitempty"`
	ExpireAt  uint64 `json:"expire_at,omitempty"`
	DeleteAt  uint64 `json:"delete_at,omitempty"`
	Index     uint64 `json:"index"`
	Tombstone bool   `json:"tombstone,omitempty"`
}

// Newer reports whether r should replace other under last-writer-wins.
func (r Record) Newer(other Record) bool {
	return r.Index > other.Index
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines the interface of the storage engine a Seed keeps its Field data in.
// Every write carries a write index that acts as the logical timestamp of the entry;
// writes with an index older than the stored entry are ignored, which makes the
// engine usable as the last-writer-wins register set underneath replication.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// The writeIndex parameter is used as a logical timestamp for the entry.
	Set(key string, value []byte, writeIndex uint64)

	// SetEIfUnset inserts an entry only if no live entry exists for the key.
	// The expireIn and deleteIn parameters are offsets relative to writeIndex,
	// see SetE for their meaning.
	SetEIfUnset(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64)

	// SetE inserts or updates an entry with an expiration and a deletion offset.
	// After expiry the key is still findable with Has() but Get() returns nothing,
	// after deletion the key is gone.
	// Note: expireIn=0 and deleteIn=0 means no expiration or deletion. Setting expireIn=0 and deleteIn=N is equivalent to expireIn=N and deleteIn=N.
	SetE(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64)

	// Append appends value to the live value of key and returns the resulting length.
	// Missing, expired or deleted keys start from an empty value. The expiry and
	// deletion marks of a live entry are kept.
	Append(key string, value []byte, writeIndex uint64) (length uint64)

	// Expire marks the entry with the specified key as expired.
	// The key is still findable with the Has() method.
	Expire(key string, writeIndex uint64)

	// Delete turns the entry into a tombstone. The tombstone is invisible to Get and Has
	// and is physically removed by the garbage collector later on.
	// Returns whether a live entry existed.
	Delete(key string, writeIndex uint64) (removed bool)

	// Merge applies a record produced by another replica if it is newer than the
	// local one. Returns true if the record was applied.
	Merge(record Record) (applied bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves a copy of the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool)

	// Has checks whether a key exists in the database.
	// This method returns true even if the value for the key is expired.
	Has(key string) (loaded bool)

	// Lookup returns the raw record for a key, tombstones included.
	Lookup(key string) (record Record, loaded bool)

	// Range calls fn for every record (tombstones included) until fn returns false.
	// The iteration order is unspecified.
	Range(fn func(record Record) bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx advances the clock of the database. Lower values are ignored.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
