package merkle

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"golang.org/x/crypto/blake2s"
)

// HashSize is the size of all hashes in the tree
const HashSize = blake2s.Size

const (
	// DefaultDepth gives 1024 buckets
	DefaultDepth = 10
	// MaxDepth gives about a million buckets
	MaxDepth = 20
)

const (
	leafNode  byte = 0x00
	innerNode byte = 0x01
)

var ErrDepth = errors.New("invalid tree depth")

// Hash is a blake2s-256 digest
type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a hex encoded hash
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func hasher() hash.Hash {
	h, _ := blake2s.New256(nil)
	return h
}

func sum(h hash.Hash) (out Hash) {
	h.Sum(out[:0])
	return
}

// KeyHash returns the hash that places a key in the tree
func KeyHash(key string) Hash {
	return blake2s.Sum256([]byte(key))
}

// RecordDigest hashes the full replicated state of a record, so replicas only
// agree on a digest if they agree on value, tombstone, TTL marks and version.
func RecordDigest(r db.Record) Hash {
	h := hasher()
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], uint64(len(r.Key)))
	h.Write(buf[:])
	h.Write([]byte(r.Key))

	if r.Tombstone {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	for _, v := range []uint64{r.ExpireAt, r.DeleteAt, r.Index} {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	binary.BigEndian.PutUint64(buf[:], uint64(len(r.Value)))
	h.Write(buf[:])
	h.Write(r.Value)
	return sum(h)
}

// BucketOf returns the bucket a key falls into for a tree of the given depth
func BucketOf(key string, depth int) int {
	return bucketOfHash(KeyHash(key), depth)
}

func bucketOfHash(kh Hash, depth int) int {
	if depth == 0 {
		return 0
	}
	return int(binary.BigEndian.Uint32(kh[:4]) >> (32 - depth))
}

// Leaf is one record inside a bucket
type Leaf struct {
	KeyHash Hash
	Digest  Hash
}

// bucketHash hashes the sorted leaves of a bucket
func bucketHash(leaves []Leaf) Hash {
	h := hasher()
	h.Write([]byte{leafNode})
	for _, l := range leaves {
		h.Write(l.KeyHash[:])
		h.Write(l.Digest[:])
	}
	return sum(h)
}

func innerHash(left, right Hash) Hash {
	h := hasher()
	h.Write([]byte{innerNode})
	h.Write(left[:])
	h.Write(right[:])
	return sum(h)
}

// EmptyRoot returns the root of a tree without records
func EmptyRoot(depth int) Hash {
	root := bucketHash(nil)
	for i := 0; i < depth; i++ {
		root = innerHash(root, root)
	}
	return root
}

// --------------------------------------------------------------------------
// Tree
// --------------------------------------------------------------------------

// Tree is an immutable bucketed Merkle tree over a set of records.
// levels[0] holds the root, levels[depth] the 2^depth bucket hashes.
type Tree struct {
	depth   int
	count   int
	buckets [][]Leaf
	keys    [][]string // keys of each bucket, same order as buckets
	levels  [][]Hash
}

// Scanner visits records until fn returns false
type Scanner func(fn func(db.Record) bool) error

// FromRange adapts a non-failing range function such as db.KVDB.Range
func FromRange(rangeFn func(fn func(db.Record) bool)) Scanner {
	return func(fn func(db.Record) bool) error {
		rangeFn(fn)
		return nil
	}
}

// Build creates a tree of the given depth from all records the scanner visits
func Build(depth int, scan Scanner) (*Tree, error) {
	if depth < 0 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d (0..%d)", ErrDepth, depth, MaxDepth)
	}

	n := 1 << depth
	t := &Tree{
		depth:   depth,
		buckets: make([][]Leaf, n),
		keys:    make([][]string, n),
	}

	type keyed struct {
		key  string
		leaf Leaf
	}
	staged := make([][]keyed, n)

	err := scan(func(r db.Record) bool {
		kh := KeyHash(r.Key)
		b := bucketOfHash(kh, depth)
		staged[b] = append(staged[b], keyed{r.Key, Leaf{KeyHash: kh, Digest: RecordDigest(r)}})
		t.count++
		return true
	})
	if err != nil {
		return nil, err
	}

	for b, entries := range staged {
		sort.Slice(entries, func(i, j int) bool {
			return bytes.Compare(entries[i].leaf.KeyHash[:], entries[j].leaf.KeyHash[:]) < 0
		})
		for _, e := range entries {
			t.buckets[b] = append(t.buckets[b], e.leaf)
			t.keys[b] = append(t.keys[b], e.key)
		}
	}

	t.levels = make([][]Hash, depth+1)
	leaves := make([]Hash, n)
	for b := range leaves {
		leaves[b] = bucketHash(t.buckets[b])
	}
	t.levels[depth] = leaves
	for l := depth - 1; l >= 0; l-- {
		below := t.levels[l+1]
		level := make([]Hash, len(below)/2)
		for i := range level {
			level[i] = innerHash(below[2*i], below[2*i+1])
		}
		t.levels[l] = level
	}
	return t, nil
}

// Root returns the root hash
func (t *Tree) Root() Hash {
	return t.levels[0][0]
}

// Depth returns the depth of the tree
func (t *Tree) Depth() int {
	return t.depth
}

// Len returns the number of records in the tree
func (t *Tree) Len() int {
	return t.count
}

// Level returns a copy of the hashes of a level (0 = root)
func (t *Tree) Level(l int) []Hash {
	if l < 0 || l > t.depth {
		return nil
	}
	return append([]Hash(nil), t.levels[l]...)
}

// Leaves returns a copy of the bucket hashes
func (t *Tree) Leaves() []Hash {
	return t.Level(t.depth)
}

// BucketKeys returns the keys of the records in a bucket
func (t *Tree) BucketKeys(bucket int) []string {
	if bucket < 0 || bucket >= len(t.keys) {
		return nil
	}
	return append([]string(nil), t.keys[bucket]...)
}

// DiffLeaves returns the buckets whose hashes differ
func DiffLeaves(a, b []Hash) ([]int, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d buckets", ErrDepth, len(a), len(b))
	}
	var out []int
	for i := range a {
		if a[i] != b[i] {
			out = append(out, i)
		}
	}
	return out, nil
}

// Diff returns the buckets that differ between two trees of equal depth.
// Equal subtrees are skipped without looking at their buckets.
func Diff(a, b *Tree) ([]int, error) {
	if a.depth != b.depth {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDepth, a.depth, b.depth)
	}

	var out []int
	var walk func(level, i int)
	walk = func(level, i int) {
		if a.levels[level][i] == b.levels[level][i] {
			return
		}
		if level == a.depth {
			out = append(out, i)
			return
		}
		walk(level+1, 2*i)
		walk(level+1, 2*i+1)
	}
	walk(0, 0)
	return out, nil
}
