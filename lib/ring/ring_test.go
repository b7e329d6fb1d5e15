package ring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocateEmpty(t *testing.T) {
	r := New(0)
	_, ok := r.Locate("key")
	require.False(t, ok)

	_, err := r.Partition([]string{"a"})
	require.Error(t, err)
}

func TestPlacementIndependentOfOrder(t *testing.T) {
	a := New(64)
	b := New(64)
	for _, f := range []string{"lawn", "meadow", "bog"} {
		a.Add(f)
	}
	for _, f := range []string{"bog", "lawn", "meadow"} {
		b.Add(f)
	}

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key-%d", i)
		fa, _ := a.Locate(key)
		fb, _ := b.Locate(key)
		require.Equal(t, fa, fb, key)
	}
}

func TestDistribution(t *testing.T) {
	r := New(DefaultVirtualNodes)
	fields := []string{"lawn", "meadow", "bog", "heath"}
	for _, f := range fields {
		require.True(t, r.Add(f))
	}
	require.False(t, r.Add("lawn"), "adding twice must report false")
	require.Equal(t, []string{"bog", "heath", "lawn", "meadow"}, r.Fields())

	counts := map[string]int{}
	const n = 20_000
	for i := 0; i < n; i++ {
		f, ok := r.Locate(fmt.Sprintf("user:%d", i))
		require.True(t, ok)
		counts[f]++
	}
	for _, f := range fields {
		// each field should get roughly a quarter
		require.InDelta(t, n/len(fields), counts[f], n/8, "field %s", f)
	}
}

func TestRemoveOnlyMovesOwnKeys(t *testing.T) {
	r := New(DefaultVirtualNodes)
	for _, f := range []string{"lawn", "meadow", "bog"} {
		r.Add(f)
	}

	before := map[string]string{}
	for i := 0; i < 5000; i++ {
		k := fmt.Sprintf("k%d", i)
		before[k], _ = r.Locate(k)
	}

	require.True(t, r.Remove("bog"))
	require.False(t, r.Has("bog"))
	require.False(t, r.Remove("bog"))

	for k, f := range before {
		after, _ := r.Locate(k)
		if f != "bog" {
			require.Equal(t, f, after, "key %s moved although its field stayed", k)
		} else {
			require.NotEqual(t, "bog", after)
		}
	}
}

func TestPartition(t *testing.T) {
	r := New(16)
	r.Add("lawn")
	groups, err := r.Partition([]string{"a", "b", "a"})
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"lawn": {"a", "b", "a"}}, groups)
}

func TestFieldID(t *testing.T) {
	require.Equal(t, FieldID("lawn"), FieldID("lawn"))
	require.NotEqual(t, FieldID("lawn"), FieldID("meadow"))
	require.NotEqual(t, RoutedShardID, FieldID(""))
}
