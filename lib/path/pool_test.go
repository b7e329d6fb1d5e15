package path

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sphagnumdb/sphagnum/rpc/client"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
	"github.com/stretchr/testify/require"
)

// countingTransport records connects and closes, endpoints starting with "down"
// refuse and endpoints starting with "slow" block until release is closed
type countingTransport struct {
	connects, closes *atomic.Int32
	entered, release chan struct{}
}

func (c countingTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) != 1 {
		return errors.New("expected a single endpoint")
	}
	endpoint := config.Transport.Endpoints[0]
	if strings.HasPrefix(endpoint, "down") {
		return errors.New("connection refused")
	}
	if strings.HasPrefix(endpoint, "slow") {
		close(c.entered)
		<-c.release
	}
	c.connects.Add(1)
	return nil
}

func (c countingTransport) Send(uint64, []byte) ([]byte, error) { return nil, errors.New("not used") }

func (c countingTransport) Close() error {
	c.closes.Add(1)
	return nil
}

func TestPool(t *testing.T) {
	var connects, closes atomic.Int32
	pool := NewPool(common.ClientConfig{TimeoutSecond: 1}, func() transport.IRPCClientTransport {
		return countingTransport{connects: &connects, closes: &closes}
	}, serializer.NewBinarySerializer())
	open := func() int32 { return connects.Load() - closes.Load() }

	var wg sync.WaitGroup
	clients := make([]*client.Client, 10)
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := pool.Get("seed-1:8080")
			if err != nil {
				t.Error(err)
			}
			clients[i] = c
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), open(), "concurrent dials must leave one connection")
	for _, c := range clients {
		require.Same(t, clients[0], c)
	}

	_, err := pool.Get("seed-2:8080")
	require.NoError(t, err)
	require.Equal(t, 2, pool.Len())

	_, err = pool.Get("down:8080")
	require.Error(t, err)
	require.Equal(t, 2, pool.Len())

	closed := closes.Load()
	pool.Drop("seed-1:8080")
	require.Equal(t, closed+1, closes.Load())
	pool.Drop("seed-1:8080")
	require.Equal(t, closed+1, closes.Load())

	_, err = pool.Get("seed-1:8080")
	require.NoError(t, err)
	require.Equal(t, int32(2), open())

	pool.Close()
	require.Equal(t, 0, pool.Len())
	require.Equal(t, int32(0), open())
}

func TestPoolSlowDialDoesNotBlockOthers(t *testing.T) {
	var connects, closes atomic.Int32
	entered, release := make(chan struct{}), make(chan struct{})
	pool := NewPool(common.ClientConfig{TimeoutSecond: 1}, func() transport.IRPCClientTransport {
		return countingTransport{connects: &connects, closes: &closes, entered: entered, release: release}
	}, serializer.NewBinarySerializer())

	slow := make(chan error, 1)
	go func() {
		_, err := pool.Get("slow:8080")
		slow <- err
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		_, err := pool.Get("seed-1:8080")
		if err == nil {
			pool.Drop("seed-1:8080")
		}
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Get of a live peer waited for the dial of another peer")
	}

	close(release)
	require.NoError(t, <-slow)
	pool.Close()
}
