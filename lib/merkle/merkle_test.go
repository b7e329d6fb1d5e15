package merkle

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/stretchr/testify/require"
)

func records(n int) []db.Record {
	out := make([]db.Record, n)
	for i := range out {
		out[i] = db.Record{Key: fmt.Sprintf("key-%d", i), Value: []byte(fmt.Sprintf("value-%d", i)), Index: uint64(i + 1)}
	}
	return out
}

func scanOf(rs []db.Record) Scanner {
	return func(fn func(db.Record) bool) error {
		for _, r := range rs {
			if !fn(r) {
				return nil
			}
		}
		return nil
	}
}

func build(t *testing.T, depth int, rs []db.Record) *Tree {
	t.Helper()
	tree, err := Build(depth, scanOf(rs))
	require.NoError(t, err)
	return tree
}

func TestBuild(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		for _, depth := range []int{0, 1, 4, DefaultDepth} {
			tree := build(t, depth, nil)
			require.Equal(t, EmptyRoot(depth), tree.Root())
			require.Equal(t, 0, tree.Len())
			require.Len(t, tree.Leaves(), 1<<depth)
		}
	})

	t.Run("InvalidDepth", func(t *testing.T) {
		_, err := Build(-1, scanOf(nil))
		require.ErrorIs(t, err, ErrDepth)
		_, err = Build(MaxDepth+1, scanOf(nil))
		require.ErrorIs(t, err, ErrDepth)
	})

	t.Run("OrderIndependent", func(t *testing.T) {
		rs := records(200)
		reversed := make([]db.Record, len(rs))
		for i, r := range rs {
			reversed[len(rs)-1-i] = r
		}
		require.Equal(t, build(t, 6, rs).Root(), build(t, 6, reversed).Root())
	})

	t.Run("SensitiveToRecordState", func(t *testing.T) {
		base := records(50)
		root := build(t, 4, base).Root()

		mutations := map[string]func(r *db.Record){
			"Value":     func(r *db.Record) { r.Value = []byte("other") },
			"Index":     func(r *db.Record) { r.Index++ },
			"ExpireAt":  func(r *db.Record) { r.ExpireAt = 99 },
			"DeleteAt":  func(r *db.Record) { r.DeleteAt = 99 },
			"Tombstone": func(r *db.Record) { r.Tombstone = true; r.Value = nil },
		}
		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				changed := append([]db.Record(nil), base...)
				mutate(&changed[7])
				require.NotEqual(t, root, build(t, 4, changed).Root())
			})
		}
	})

	t.Run("BucketKeys", func(t *testing.T) {
		rs := records(100)
		tree := build(t, 3, rs)
		total := 0
		for b := 0; b < 1<<3; b++ {
			for _, k := range tree.BucketKeys(b) {
				require.Equal(t, b, BucketOf(k, 3))
				total++
			}
		}
		require.Equal(t, len(rs), total)
		require.Nil(t, tree.BucketKeys(-1))
		require.Nil(t, tree.BucketKeys(8))
	})

	t.Run("ScanError", func(t *testing.T) {
		boom := fmt.Errorf("boom")
		_, err := Build(2, func(fn func(db.Record) bool) error { return boom })
		require.ErrorIs(t, err, boom)
	})
}

func TestDiff(t *testing.T) {
	base := records(300)
	a := build(t, 8, base)

	changed := append([]db.Record(nil), base...)
	changed[3].Value = []byte("diverged")
	changed[150].Index = 1000
	changed = append(changed, db.Record{Key: "extra", Value: []byte("x"), Index: 1})
	b := build(t, 8, changed)

	expected := map[int]bool{
		BucketOf(base[3].Key, 8):   true,
		BucketOf(base[150].Key, 8): true,
		BucketOf("extra", 8):       true,
	}

	diff, err := Diff(a, b)
	require.NoError(t, err)
	require.Len(t, diff, len(expected))
	for _, bucket := range diff {
		require.True(t, expected[bucket], "unexpected bucket %d", bucket)
	}

	leafDiff, err := DiffLeaves(a.Leaves(), b.Leaves())
	require.NoError(t, err)
	require.Equal(t, diff, leafDiff)

	same, err := Diff(a, build(t, 8, base))
	require.NoError(t, err)
	require.Empty(t, same)

	_, err = Diff(a, build(t, 7, base))
	require.ErrorIs(t, err, ErrDepth)
	_, err = DiffLeaves(a.Leaves(), a.Level(7))
	require.ErrorIs(t, err, ErrDepth)
}

func TestProof(t *testing.T) {
	rs := records(500)
	tree := build(t, DefaultDepth, rs)
	root := tree.Root()

	t.Run("Membership", func(t *testing.T) {
		for _, r := range rs[:50] {
			p := tree.Prove(r.Key)
			require.NoError(t, p.VerifyMembership(root, r.Key, RecordDigest(r)))
			require.ErrorIs(t, p.VerifyNonMembership(root, r.Key), ErrMember)
		}
	})

	t.Run("WrongDigest", func(t *testing.T) {
		r := rs[10]
		p := tree.Prove(r.Key)
		r.Value = []byte("forged")
		require.ErrorIs(t, p.VerifyMembership(root, r.Key, RecordDigest(r)), ErrProofMismatch)
	})

	t.Run("NonMembership", func(t *testing.T) {
		p := tree.Prove("missing")
		require.NoError(t, p.VerifyNonMembership(root, "missing"))
		require.ErrorIs(t, p.VerifyMembership(root, "missing", Hash{}), ErrNotMember)
	})

	t.Run("WrongRoot", func(t *testing.T) {
		p := tree.Prove(rs[0].Key)
		require.ErrorIs(t, p.VerifyMembership(EmptyRoot(DefaultDepth), rs[0].Key, RecordDigest(rs[0])), ErrProofMismatch)
	})

	t.Run("TamperedLeaves", func(t *testing.T) {
		p := tree.Prove(rs[0].Key)
		p.Leaves = p.Leaves[1:]
		_, err := p.Root()
		require.NoError(t, err)
		require.Error(t, p.VerifyNonMembership(root, rs[0].Key))
	})

	t.Run("OtherBucket", func(t *testing.T) {
		var other string
		for i := 0; ; i++ {
			other = fmt.Sprintf("probe-%d", i)
			if BucketOf(other, DefaultDepth) != BucketOf(rs[0].Key, DefaultDepth) {
				break
			}
		}
		p := tree.Prove(rs[0].Key)
		require.ErrorIs(t, p.VerifyNonMembership(root, other), ErrInvalidProof)
	})

	t.Run("DepthZero", func(t *testing.T) {
		small := build(t, 0, rs[:5])
		p := small.Prove(rs[0].Key)
		require.Empty(t, p.Siblings)
		require.NoError(t, p.VerifyMembership(small.Root(), rs[0].Key, RecordDigest(rs[0])))
	})

	t.Run("Marshal", func(t *testing.T) {
		p := tree.Prove(rs[42].Key)
		decoded, err := UnmarshalProof(p.Marshal())
		require.NoError(t, err)
		require.Equal(t, p, decoded)
		require.NoError(t, decoded.VerifyMembership(root, rs[42].Key, RecordDigest(rs[42])))

		data := p.Marshal()
		_, err = UnmarshalProof(data[:len(data)-1])
		require.ErrorIs(t, err, ErrInvalidProof)
		_, err = UnmarshalProof(nil)
		require.ErrorIs(t, err, ErrInvalidProof)
		data[0] = 9
		_, err = UnmarshalProof(data)
		require.ErrorIs(t, err, ErrInvalidProof)

		// a leaf count whose byte size overflows must not be allocated
		huge := binary.AppendUvarint([]byte{proofVersion, 0, 0}, 1<<58)
		_, err = UnmarshalProof(huge)
		require.ErrorIs(t, err, ErrInvalidProof)
	})
}

func TestHashString(t *testing.T) {
	h := KeyHash("k")
	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	_, err = ParseHash("abcd")
	require.Error(t, err)
	_, err = ParseHash("zz")
	require.Error(t, err)
}
