package moss

import (
	"fmt"
	"testing"
	"time"

	"github.com/sphagnumdb/sphagnum/lib/db"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func physicalSize(database db.KVDB) int {
	n := 0
	for _, s := range database.(*mossImpl).shards {
		n += s.Data.Size()
	}
	return n
}

func TestTombstoneKeptForTTL(t *testing.T) {
	database := NewMossDB(&DBOptions{NumShards: 2, GCInterval: 5 * time.Millisecond, TombstoneTTL: 10})
	defer database.Close()

	database.Set("k", []byte("v"), 1)
	if !database.Delete("k", 2) {
		t.Fatal("Delete should report the removed key")
	}

	rec, ok := database.Lookup("k")
	if !ok || !rec.Tombstone || rec.Index != 2 {
		t.Fatalf("expected a tombstone at index 2, got %+v (ok=%v)", rec, ok)
	}

	// an older replicated write must not resurrect the key
	if database.Merge(db.Record{Key: "k", Value: []byte("old"), Index: 1}) {
		t.Error("older record was merged over a tombstone")
	}
	if database.Has("k") {
		t.Error("tombstoned key reported by Has")
	}

	database.SetWriteIdx(12)
	waitFor(t, time.Second, func() bool { return physicalSize(database) == 0 })
}

func TestGCAfterQueueOverflow(t *testing.T) {
	database := NewMossDB(&DBOptions{NumShards: 1, GCInterval: 5 * time.Millisecond, EventQueueSize: 2})
	defer database.Close()

	const n = 200
	for i := 0; i < n; i++ {
		database.SetE(fmt.Sprintf("key-%d", i), []byte("v"), uint64(i+1), 0, 5)
	}
	database.SetWriteIdx(n + 10)
	waitFor(t, time.Second, func() bool { return physicalSize(database) == 0 })
}

func TestMergeOrdering(t *testing.T) {
	database := NewMossDB(nil)
	defer database.Close()

	if !database.Merge(db.Record{Key: "a", Value: []byte("1"), Index: 5}) {
		t.Fatal("first merge should apply")
	}
	if database.Merge(db.Record{Key: "a", Value: []byte("dup"), Index: 5}) {
		t.Error("merge with an equal index should be ignored")
	}
	if !database.Merge(db.Record{Key: "a", Value: []byte("2"), Index: 6}) {
		t.Error("newer record should apply")
	}
	if v, _ := database.Get("a"); string(v) != "2" {
		t.Errorf("expected 2, got %q", v)
	}
	if database.WriteIdx() != 6 {
		t.Errorf("merge should advance the clock, got %d", database.WriteIdx())
	}

	// a local write older than the merged record is stale
	database.Set("a", []byte("stale"), 4)
	if v, _ := database.Get("a"); string(v) != "2" {
		t.Errorf("stale local write applied: %q", v)
	}
}
