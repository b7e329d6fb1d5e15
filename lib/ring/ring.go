package ring

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultVirtualNodes is the number of ring positions per Field
const DefaultVirtualNodes = 128

// RoutedShardID is the shard id a request carries when the receiving Seed should
// route it to the owning Field itself
const RoutedShardID uint64 = 0

// FieldID returns the stable 64-bit id of a Field, used as shard id on the wire.
// The id never collides with RoutedShardID.
func FieldID(field string) uint64 {
	id := xxhash.Sum64String(field)
	if id == RoutedShardID {
		id = 1
	}
	return id
}

type point struct {
	hash  uint64
	field string
}

// Ring places keys on Fields by consistent hashing. Each Field owns a number of
// virtual nodes; a key belongs to the Field of the first virtual node at or after
// its hash. Adding or removing a Field only moves the keys of that Field.
//
// Thread-safety: all methods are safe for concurrent use
type Ring struct {
	mu     sync.RWMutex
	vnodes int
	points []point
	fields map[string]struct{}
}

// New creates an empty ring. vnodes <= 0 selects DefaultVirtualNodes.
func New(vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = DefaultVirtualNodes
	}
	return &Ring{vnodes: vnodes, fields: make(map[string]struct{})}
}

func vnodeHash(field string, i int) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s#%d", field, i))
}

// Add puts a Field on the ring. Returns false if it was already there.
func (r *Ring) Add(field string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fields[field]; ok {
		return false
	}
	r.fields[field] = struct{}{}
	for i := 0; i < r.vnodes; i++ {
		r.points = append(r.points, point{hash: vnodeHash(field, i), field: field})
	}
	r.sortPoints()
	return true
}

// Remove takes a Field off the ring. Returns false if it was not there.
func (r *Ring) Remove(field string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fields[field]; !ok {
		return false
	}
	delete(r.fields, field)
	r.points = slices.DeleteFunc(r.points, func(p point) bool { return p.field == field })
	return true
}

// sortPoints orders points by hash; equal hashes are ordered by field name so
// that placement does not depend on insertion order.
func (r *Ring) sortPoints() {
	sort.Slice(r.points, func(i, j int) bool {
		if r.points[i].hash != r.points[j].hash {
			return r.points[i].hash < r.points[j].hash
		}
		return r.points[i].field < r.points[j].field
	})
}

// Has reports whether a Field is on the ring
func (r *Ring) Has(field string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fields[field]
	return ok
}

// Fields returns the Fields on the ring in lexical order
func (r *Ring) Fields() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.fields))
	for f := range r.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of Fields on the ring
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fields)
}

// Locate returns the Field owning key. ok is false if the ring is empty.
func (r *Ring) Locate(key string) (field string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.points) == 0 {
		return "", false
	}
	h := xxhash.Sum64String(key)
	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].field, true
}

// Partition groups keys by their owning Field, keeping the order of keys within a group
func (r *Ring) Partition(keys []string) (map[string][]string, error) {
	groups := make(map[string][]string)
	for _, k := range keys {
		f, ok := r.Locate(k)
		if !ok {
			return nil, fmt.Errorf("no field available for key %q", k)
		}
		groups[f] = append(groups[f], k)
	}
	return groups, nil
}
