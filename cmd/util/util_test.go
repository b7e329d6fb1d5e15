package util

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/sphagnumdb/sphagnum/lib/ring"
	"github.com/stretchr/testify/assert"
)

func TestWrapString(t *testing.T) {
	text := "Replicas (this one included) that must acknowledge a write. 0 selects a majority of the live Field members"
	wrapped := WrapString(text)

	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap, "line %q", line)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(wrapped))
	assert.Equal(t, "", WrapString("   "))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a:1", "b:2"}, SplitList(" a:1, ,b:2,"))
}

func TestGetShardID(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("field", "")
	assert.Equal(t, ring.RoutedShardID, GetShardID())

	viper.Set("field", "meadow")
	assert.Equal(t, ring.FieldID("meadow"), GetShardID())
}
