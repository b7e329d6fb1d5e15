package lstore

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/db/engines/moss"
	"github.com/sphagnumdb/sphagnum/lib/hlc"
	"github.com/sphagnumdb/sphagnum/lib/store"
)

// manualClock is a time source tests can move forward
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*LocalStore, *manualClock) {
	t.Helper()
	src := &manualClock{now: time.UnixMilli(1_700_000_000_000)}
	s := NewLocalStore(func() db.KVDB {
		return moss.NewMossDB(&moss.DBOptions{NumShards: 2, TombstoneTTL: hlc.Ticks(time.Minute)})
	}, hlc.NewWithSource(src.Now))
	t.Cleanup(func() { _ = s.Close() })
	return s, src
}

func TestLocalStoreOperations(t *testing.T) {
	s, _ := newStore(t)

	tests := []struct {
		name string
		run  func(t *testing.T)
	}{
		{"SetGet", func(t *testing.T) {
			if err := s.Set("a", []byte("1")); err != nil {
				t.Fatal(err)
			}
			v, ok, err := s.Get("a")
			if err != nil || !ok || !bytes.Equal(v, []byte("1")) {
				t.Fatalf("Get(a) = %q, %v, %v", v, ok, err)
			}
		}},
		{"SetEIfUnset", func(t *testing.T) {
			_ = s.SetEIfUnset("nx", []byte("first"), 0, 0)
			_ = s.SetEIfUnset("nx", []byte("second"), 0, 0)
			if v, _, _ := s.Get("nx"); string(v) != "first" {
				t.Fatalf("Get(nx) = %q, want first", v)
			}
		}},
		{"Append", func(t *testing.T) {
			n, err := s.Append("log", []byte("ab"))
			if err != nil || n != 2 {
				t.Fatalf("Append = %d, %v", n, err)
			}
			if n, _ = s.Append("log", []byte("cde")); n != 5 {
				t.Fatalf("Append = %d, want 5", n)
			}
		}},
		{"Expire", func(t *testing.T) {
			_ = s.Set("exp", []byte("x"))
			_ = s.Expire("exp")
			if _, ok, _ := s.Get("exp"); ok {
				t.Error("expired value returned")
			}
			if ok, _ := s.Has("exp"); !ok {
				t.Error("expired key not found by Has")
			}
		}},
		{"ExistsCountsDuplicates", func(t *testing.T) {
			_ = s.Set("e1", []byte("x"))
			n, err := s.Exists("e1", "e1", "nope")
			if err != nil || n != 2 {
				t.Fatalf("Exists = %d, %v; want 2", n, err)
			}
		}},
		{"DeleteCountsRemoved", func(t *testing.T) {
			_ = s.Set("d1", []byte("x"))
			_ = s.Set("d2", []byte("x"))
			n, err := s.Delete("d1", "d2", "d3")
			if err != nil || n != 2 {
				t.Fatalf("Delete = %d, %v; want 2", n, err)
			}
			if ok, _ := s.Has("d1"); ok {
				t.Error("deleted key still exists")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.run)
	}
}

func TestLocalStoreTTL(t *testing.T) {
	s, src := newStore(t)

	if err := s.SetE("k", []byte("v"), hlc.Ticks(time.Second), hlc.Ticks(2*time.Second)); err != nil {
		t.Fatal(err)
	}

	src.Advance(1500 * time.Millisecond)
	s.Tick()
	if _, ok, _ := s.Get("k"); ok {
		t.Error("value should be expired")
	}
	if ok, _ := s.Has("k"); !ok {
		t.Error("key should still exist")
	}

	src.Advance(time.Second)
	s.Tick()
	if ok, _ := s.Has("k"); ok {
		t.Error("key should be deleted")
	}
}

func TestLocalStoreReplication(t *testing.T) {
	a, _ := newStore(t)
	b, _ := newStore(t)

	_ = a.Set("k", []byte("from-a"))
	_, _ = a.Delete("gone")
	records := a.Lookup("k", "gone", "unknown")
	if len(records) != 2 {
		t.Fatalf("Lookup returned %d records, want 2", len(records))
	}

	applied, err := b.Merge(records...)
	if err != nil || applied != 2 {
		t.Fatalf("Merge = %d, %v; want 2", applied, err)
	}
	if v, _, _ := b.Get("k"); string(v) != "from-a" {
		t.Errorf("Get(k) = %q after merge", v)
	}

	// merging the same records again changes nothing
	if applied, _ = b.Merge(records...); applied != 0 {
		t.Errorf("second Merge applied %d records", applied)
	}

	// b's clock moved past the merged index, so its next write wins
	_ = b.Set("k", []byte("from-b"))
	if applied, _ = a.Merge(b.Lookup("k")...); applied != 1 {
		t.Fatal("newer record of b was not applied on a")
	}
	if v, _, _ := a.Get("k"); string(v) != "from-b" {
		t.Errorf("Get(k) = %q, want from-b", v)
	}

	var seen int
	if err := b.Scan(func(r db.Record) bool { seen++; return true }); err != nil {
		t.Fatal(err)
	}
	if seen != 2 {
		t.Errorf("Scan visited %d records, want 2", seen)
	}
}

func TestLocalStoreUnsupported(t *testing.T) {
	s := NewLocalStore(func() db.KVDB { return limitedDB{moss.NewMossDB(nil)} }, nil)
	defer s.Close()

	if err := s.Set("k", nil); store.CodeOf(err) != store.RetCUnsupportedOperation {
		t.Errorf("Set: expected unsupported operation, got %v", err)
	}
	if _, err := s.Merge(db.Record{Key: "k", Index: 1}); store.CodeOf(err) != store.RetCUnsupportedOperation {
		t.Errorf("Merge: expected unsupported operation, got %v", err)
	}
	if _, _, err := s.Get("k"); err != nil {
		t.Errorf("Get: unexpected error %v", err)
	}
}

// limitedDB hides the write features of an engine
type limitedDB struct {
	db.KVDB
}

func (l limitedDB) SupportsFeature(f db.Feature) bool {
	if f&(db.FeatureSet|db.FeatureMerge) != 0 {
		return false
	}
	return l.KVDB.SupportsFeature(f)
}
