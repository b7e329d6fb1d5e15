package seed

import (
	"testing"
	"time"
)

func TestQuorums(t *testing.T) {
	tests := []struct {
		configured, members, want int
	}{
		{0, 1, 1},
		{0, 2, 2},
		{0, 3, 2},
		{0, 4, 3},
		{0, 5, 3},
		{2, 5, 2},
		{4, 3, 4},
	}
	for _, tt := range tests {
		c := Config{WriteQuorum: tt.configured}
		if got := c.writeQuorum(tt.members); got != tt.want {
			t.Errorf("writeQuorum(W=%d, n=%d) = %d; want %d", tt.configured, tt.members, got, tt.want)
		}
	}

	if got := (&Config{}).readQuorum(); got != 1 {
		t.Errorf("readQuorum() = %d; want 1", got)
	}
	if got := (&Config{ReadQuorum: 3}).readQuorum(); got != 3 {
		t.Errorf("readQuorum() = %d; want 3", got)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for name, mutate := range map[string]func(c *Config){
		"NegativeWrite":  func(c *Config) { c.WriteQuorum = -1 },
		"NegativeRead":   func(c *Config) { c.ReadQuorum = -1 },
		"DepthTooLarge":  func(c *Config) { c.MerkleDepth = 21 },
		"NoTimeout":      func(c *Config) { c.Timeout = 0 },
		"NegativeTicker": func(c *Config) { c.TickInterval = -time.Second },
	} {
		c := DefaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
