// Package testing provides the conformance suite and benchmarks every storage
// engine implementing db.KVDB runs.
//
// Example usage:
//
//	factory := func() db.KVDB {
//		return moss.NewMossDB(nil)
//	}
//
//	// in a _test.go file of the engine
//	dbtesting.RunKVDBTests(t, "MossDB", factory)
//	dbtesting.RunKVDBBenchmarks(b, "MossDB", factory)
//
// Tests of features an engine does not advertise through SupportsFeature are skipped.
package testing
