package kv

import (
	"testing"
	"time"

	"github.com/sphagnumdb/sphagnum/lib/hlc"
)

func TestParseTTL(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0", 0, false},
		{"30s", hlc.Ticks(30 * time.Second), false},
		{"1h", hlc.Ticks(time.Hour), false},
		{"-1s", 0, true},
		{"10", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseTTL("ttl", tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTTL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTTL(%q) = %d; want %d", tt.in, got, tt.want)
		}
	}
}
