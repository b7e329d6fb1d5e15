package hlc

import (
	"sync"
	"testing"
	"time"
)

func TestNowIsMonotonic(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	c := NewWithSource(func() time.Time { return frozen })

	first := c.Now()
	second := c.Now()
	if second != first+1 {
		t.Errorf("frozen clock should count logically: %d then %d", first, second)
	}
	if !Physical(second).Equal(frozen) {
		t.Errorf("physical part changed: %v", Physical(second))
	}

	// wall time going backwards must not move the clock backwards
	frozen = frozen.Add(-time.Second)
	if third := c.Now(); third <= second {
		t.Errorf("clock went backwards: %d after %d", third, second)
	}
}

func TestObserve(t *testing.T) {
	now := time.UnixMilli(1_000)
	c := NewWithSource(func() time.Time { return now })

	remote := Ticks(5 * time.Second)
	c.Observe(remote)
	if got := c.Now(); got <= remote {
		t.Errorf("Now after Observe should exceed the remote stamp: %d <= %d", got, remote)
	}

	c.Observe(1)
	if c.Peek() <= remote {
		t.Error("observing an older stamp must not rewind the clock")
	}
}

func TestTicks(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want time.Duration
	}{
		{0, 0},
		{time.Microsecond, time.Millisecond},
		{time.Second, time.Second},
		{90 * time.Minute, 90 * time.Minute},
	}
	for _, c := range cases {
		if got := Duration(Ticks(c.d)); got != c.want {
			t.Errorf("Duration(Ticks(%s)) = %s, want %s", c.d, got, c.want)
		}
	}
}

func TestConcurrentNow(t *testing.T) {
	c := New()
	const workers, perWorker = 8, 1000

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, c.Now())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ts := range local {
				seen[ts] = struct{}{}
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected unique stamps, got %d duplicates", workers*perWorker-len(seen))
	}
}
