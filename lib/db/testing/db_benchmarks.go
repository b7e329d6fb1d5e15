package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/sphagnumdb/sphagnum/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	benchmarks := []struct {
		name    string
		feature db.Feature
		fn      func(b *testing.B, database db.KVDB)
	}{
		{"Set", db.FeatureSet, benchmarkSet},
		{"SetExisting", db.FeatureSet, benchmarkSetExisting},
		{"SetWithExpiry", db.FeatureSetE, benchmarkSetWithExpiry},
		{"Append", db.FeatureAppend, benchmarkAppend},
		{"Get", db.FeatureGet, benchmarkGet},
		{"Delete", db.FeatureDelete, benchmarkDelete},
		{"Has(not)", db.FeatureHas, benchmarkHasNot},
		{"Merge", db.FeatureMerge, benchmarkMerge},
		{"Range", db.FeatureRange, benchmarkRange},
		{"MixedUsage", db.FeatureSet | db.FeatureGet | db.FeatureDelete, benchmarkMixedUsage},
	}

	b.Run(name, func(b *testing.B) {
		for _, bm := range benchmarks {
			b.Run(bm.name, func(b *testing.B) {
				database := factory()
				b.Cleanup(func() { _ = database.Close() })
				requireFeature(b, database, bm.feature)
				bm.fn(b, database)
			})
		}

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// fill writes n keys with small values and returns the last write index used
func fill(database db.KVDB, n int) uint64 {
	for i := 0; i < n; i++ {
		database.Set(fmt.Sprintf("bench-key-%d", i), []byte(fmt.Sprintf("bench-value-%d", i)), uint64(i+1))
	}
	return uint64(n)
}

func benchmarkSet(b *testing.B, database db.KVDB) {
	var idx atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := idx.Add(1)
			database.Set(fmt.Sprintf("bench-key-%d", i), []byte("bench-value"), i)
		}
	})
}

func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	const numKeys = 10_000
	var idx atomic.Uint64
	idx.Store(fill(database, numKeys))
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := idx.Add(1)
			database.Set(fmt.Sprintf("bench-key-%d", i%numKeys), []byte("bench-value"), i)
		}
	})
}

func benchmarkSetWithExpiry(b *testing.B, database db.KVDB) {
	var idx atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := idx.Add(1)
			database.SetE(fmt.Sprintf("bench-key-%d", i), []byte("bench-value"), i, 100, 200)
		}
	})
}

func benchmarkAppend(b *testing.B, database db.KVDB) {
	const numKeys = 1_000
	var idx atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := idx.Add(1)
			database.Append(fmt.Sprintf("bench-key-%d", i%numKeys), []byte("x"), i)
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	const numKeys = 10_000
	fill(database, numKeys)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.Get(fmt.Sprintf("bench-key-%d", r.Intn(numKeys)))
		}
	})
}

func benchmarkDelete(b *testing.B, database db.KVDB) {
	var idx atomic.Uint64
	idx.Store(fill(database, b.N))
	var next atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Delete(fmt.Sprintf("bench-key-%d", next.Add(1)-1), idx.Add(1))
		}
	})
}

func benchmarkHasNot(b *testing.B, database db.KVDB) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			database.Has(fmt.Sprintf("missing-%d", i))
			i++
		}
	})
}

func benchmarkMerge(b *testing.B, database db.KVDB) {
	var idx atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := idx.Add(1)
			database.Merge(db.Record{Key: fmt.Sprintf("bench-key-%d", i%1000), Value: []byte("v"), Index: i})
		}
	})
}

func benchmarkRange(b *testing.B, database db.KVDB) {
	fill(database, 10_000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := 0
		database.Range(func(db.Record) bool {
			n++
			return true
		})
	}
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	defer database.Close()
	requireFeature(b, database, db.FeatureSave|db.FeatureLoad)
	fill(database, 100_000)

	var snapshot bytes.Buffer
	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			snapshot.Reset()
			if err := database.Save(&snapshot); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(snapshot.Bytes())); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	const numKeys = 10_000
	var idx atomic.Uint64
	idx.Store(fill(database, numKeys))
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", r.Intn(numKeys))
			switch op := r.Intn(10); {
			case op < 6:
				database.Get(key)
			case op < 9:
				database.Set(key, []byte("bench-value"), idx.Add(1))
			default:
				database.Delete(key, idx.Add(1))
			}
		}
	})
}
