package dstore

import (
	"errors"
	"testing"
	"time"
)

func tickStore(leader uint64, valid bool, err error) *DistributedStore {
	return &DistributedStore{
		shardID:   7,
		replicaID: 1,
		leaderOf: func(shardID uint64) (uint64, uint64, bool, error) {
			return leader, 1, valid, err
		},
	}
}

func TestShouldTick(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		store    *DistributedStore
		lastProp time.Time
		want     bool
	}{
		{"idle leader", tickStore(1, true, nil), now.Add(-2 * IdleTickInterval), true},
		{"leader never proposed", tickStore(1, true, nil), time.Time{}, true},
		{"busy leader", tickStore(1, true, nil), now.Add(-IdleTickInterval / 2), false},
		{"follower", tickStore(2, true, nil), now.Add(-2 * IdleTickInterval), false},
		{"no leader elected", tickStore(0, false, nil), now.Add(-2 * IdleTickInterval), false},
		{"leader unknown", tickStore(1, true, errors.New("shard not found")), now.Add(-2 * IdleTickInterval), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.lastProp.IsZero() {
				tt.store.lastProposal.Store(tt.lastProp.UnixNano())
			}
			if got := tt.store.shouldTick(now); got != tt.want {
				t.Errorf("shouldTick() = %v; want %v", got, tt.want)
			}
		})
	}
}

// A follower must not touch the NodeHost when ticking: the store below has none.
func TestFollowerTickDoesNotPropose(t *testing.T) {
	s := tickStore(2, true, nil)
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
}
