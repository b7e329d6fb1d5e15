package cluster

import (
	"strings"
	"testing"

	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/stretchr/testify/assert"
)

func TestFormatMembers(t *testing.T) {
	out := formatMembers([]passport.Passport{
		{SeedID: "b", Field: "meadow", RPCAddr: "10.0.0.2:8080", Mode: passport.ModeQuorum},
		{SeedID: "a", Field: "meadow", RPCAddr: "10.0.0.1:8080", Mode: passport.ModeQuorum},
		{SeedID: "c", Field: "bog", RPCAddr: "10.0.0.3:8080", Mode: passport.ModeRaft, Version: "0.3.0"},
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "FIELD"))
	assert.Contains(t, lines[1], "bog")
	assert.Contains(t, lines[1], "0.3.0")
	assert.Contains(t, lines[2], "10.0.0.1:8080")
	assert.Contains(t, lines[3], "10.0.0.2:8080")
	assert.Equal(t, "3 seeds in 2 fields", lines[4])
}
