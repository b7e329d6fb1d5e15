package internal

import "github.com/sphagnumdb/sphagnum/lib/db"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Retrieve an entry by key.
	QueryTHas                        // Check if a key exists.
	QueryTExists                     // Count the existing keys of a list.
	QueryTScan                       // Return all raw records.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTHas:
		return "Has"
	case QueryTExists:
		return "Exists"
	case QueryTScan:
		return "Scan"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// ToDBFeature returns the feature the database needs to answer the query
func (q QueryType) ToDBFeature() db.Feature {
	switch q {
	case QueryTGet:
		return db.FeatureGet
	case QueryTHas, QueryTExists:
		return db.FeatureHas
	case QueryTScan:
		return db.FeatureRange
	default:
		return 0
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type QueryType // The type of Query to perform.
	Keys []string  // The keys of the Query (empty for some queries).
}

// QueryResult is the result of a QueryTGet operation.
// All other query results are primitive types or predefined structs (bool, uint64, []db.Record, db.DatabaseInfo).
type QueryResult struct {
	Ok    bool
	Value []byte
}
