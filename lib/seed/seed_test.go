package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/db/engines/moss"
	"github.com/sphagnumdb/sphagnum/lib/hlc"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/lib/path"
	"github.com/sphagnumdb/sphagnum/lib/ring"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/lib/store/lstore"
	"github.com/sphagnumdb/sphagnum/rpc/client"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/server"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// In-memory network
// --------------------------------------------------------------------------

// memNet connects RPC servers by address and keeps the membership of all Seeds
type memNet struct {
	mu      sync.Mutex
	servers map[string]*server.RPCServer
	down    map[string]bool
	seeds   []passport.Passport
	members map[string]*fakeMembers
}

func newMemNet() *memNet {
	return &memNet{
		servers: make(map[string]*server.RPCServer),
		down:    make(map[string]bool),
		members: make(map[string]*fakeMembers),
	}
}

func (n *memNet) server(addr string) (*server.RPCServer, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	srv, ok := n.servers[addr]
	return srv, ok && !n.down[addr]
}

// setDown makes Seeds unreachable without removing them from the membership
func (n *memNet) setDown(addrs ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range addrs {
		n.down[a] = true
	}
}

func (n *memNet) peersOf(seedID string) []passport.Passport {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []passport.Passport
	for _, p := range n.seeds {
		if p.SeedID != seedID {
			out = append(out, p)
		}
	}
	return out
}

// leave removes a Seed from the membership and tells all others
func (n *memNet) leave(p passport.Passport) {
	n.mu.Lock()
	for i, s := range n.seeds {
		if s.SeedID == p.SeedID {
			n.seeds = append(n.seeds[:i], n.seeds[i+1:]...)
			break
		}
	}
	var others []*fakeMembers
	for id, m := range n.members {
		if id != p.SeedID {
			others = append(others, m)
		}
	}
	n.mu.Unlock()

	for _, m := range others {
		m.emit(path.Event{Type: path.EventLeave, Passport: p})
	}
}

type fakeMembers struct {
	net  *memNet
	self passport.Passport
	mu   sync.Mutex
	subs []func(path.Event)
}

func (m *fakeMembers) Local() passport.Passport   { return m.self }
func (m *fakeMembers) Peers() []passport.Passport { return m.net.peersOf(m.self.SeedID) }

func (m *fakeMembers) Subscribe(fn func(path.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *fakeMembers) emit(e path.Event) {
	m.mu.Lock()
	subs := append([]func(path.Event){}, m.subs...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

// memTransport is a client transport that calls the RPC server of its endpoint directly
type memTransport struct {
	net  *memNet
	addr string
}

func (t *memTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	t.addr = config.Transport.Endpoints[0]
	return nil
}

func (t *memTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	srv, ok := t.net.server(t.addr)
	if !ok {
		return nil, fmt.Errorf("%s is unreachable: %w", t.addr, transport.ErrNoConnection)
	}
	return srv.Handle(shardId, req), nil
}

func (t *memTransport) Close() error { return nil }

type nopServerTransport struct{}

func (nopServerTransport) RegisterHandler(transport.ServerHandleFunc) {}
func (nopServerTransport) Listen(common.ServerConfig) error           { return nil }
func (nopServerTransport) Close() error                               { return nil }

// --------------------------------------------------------------------------
// Cluster setup
// --------------------------------------------------------------------------

type testSeed struct {
	*Seed
	replica *lstore.LocalStore
	client  *client.Client
	addr    string
}

func testConfig() Config {
	config := DefaultConfig()
	config.Timeout = time.Second
	config.AntiEntropyInterval = 0
	config.TickInterval = 0
	config.MerkleDepth = 4
	return config
}

// newCluster starts one quorum Seed per given Field name
func newCluster(t *testing.T, config Config, fields ...string) (*memNet, []*testSeed) {
	t.Helper()
	n := newMemNet()
	ser := serializer.NewBinarySerializer()

	for i, field := range fields {
		p := passport.New(field, fmt.Sprintf("seed-%d", i), passport.ModeQuorum)
		n.seeds = append(n.seeds, *p)
		n.members[p.SeedID] = &fakeMembers{net: n, self: *p}
	}

	seeds := make([]*testSeed, 0, len(fields))
	for _, p := range n.seeds {
		st := lstore.NewLocalStore(func() db.KVDB {
			return moss.NewMossDB(&moss.DBOptions{NumShards: 2, TombstoneTTL: hlc.Ticks(time.Minute)})
		}, nil)
		pool := path.NewPool(common.ClientConfig{}, func() transport.IRPCClientTransport {
			return &memTransport{net: n}
		}, ser)

		s, err := New(config, st, n.members[p.SeedID], pool)
		require.NoError(t, err)

		srv := server.NewRPCServer(common.ServerConfig{}, nopServerTransport{}, ser)
		s.Register(srv)
		n.servers[p.RPCAddr] = srv

		c, err := client.NewClient(common.ClientConfig{
			Transport: common.ClientTransportConfig{Endpoints: []string{p.RPCAddr}},
		}, &memTransport{net: n}, ser)
		require.NoError(t, err)

		seeds = append(seeds, &testSeed{Seed: s, replica: st, client: c, addr: p.RPCAddr})

		t.Cleanup(func() {
			n.setDown(p.RPCAddr)
			pool.Close()
			_ = st.Close()
		})
	}
	return n, seeds
}

// keysOf returns count keys the ring places on field
func keysOf(r *ring.Ring, field string, count int) []string {
	var out []string
	for i := 0; len(out) < count; i++ {
		key := fmt.Sprintf("key-%d", i)
		if f, _ := r.Locate(key); f == field {
			out = append(out, key)
		}
	}
	return out
}

func hasRecord(s *testSeed, key string) bool {
	return len(s.replica.Lookup(key)) == 1
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRoutedRequestsReachOwningField(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "north", "north", "north", "south", "south")
	r := seeds[0].Ring()
	require.ElementsMatch(t, []string{"north", "south"}, r.Fields())

	keys := append(keysOf(r, "north", 5), keysOf(r, "south", 5)...)
	for _, key := range keys {
		require.NoError(t, seeds[3].client.Set(key, []byte("v-"+key)))
	}

	for _, key := range keys {
		field, _ := r.Locate(key)
		for _, s := range seeds {
			if s.local.Field == field {
				require.Eventually(t, func() bool { return hasRecord(s, key) }, time.Second, 5*time.Millisecond,
					"%s missing on replica %s", key, s.addr)
			} else {
				require.False(t, hasRecord(s, key), "%s stored outside of field %s", key, field)
			}
		}

		for _, s := range seeds {
			value, ok, err := s.client.Get(key)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "v-"+key, string(value))
		}
	}
}

func TestMultiFieldOperations(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "north", "north", "south")
	r := seeds[0].Ring()
	keys := append(keysOf(r, "north", 3), keysOf(r, "south", 3)...)
	for _, key := range keys {
		require.NoError(t, seeds[0].client.Set(key, []byte("x")))
	}

	n, err := seeds[1].client.Exists(append(keys, "missing")...)
	require.NoError(t, err)
	require.Equal(t, uint64(len(keys)), n)

	n, err = seeds[2].client.Delete(keys...)
	require.NoError(t, err)
	require.Equal(t, uint64(len(keys)), n)

	n, err = seeds[0].client.Exists(keys...)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWriteQuorum(t *testing.T) {
	net, seeds := newCluster(t, testConfig(), "north", "north", "north", "south")
	r := seeds[0].Ring()
	north := keysOf(r, "north", 2)
	south := keysOf(r, "south", 1)

	// one of three replicas down still leaves a majority
	net.setDown(seeds[2].addr)
	require.NoError(t, seeds[0].client.Set(north[0], []byte("a")))

	net.setDown(seeds[1].addr)
	err := seeds[0].client.Set(north[1], []byte("b"))
	require.True(t, store.IsCode(err, store.RetCQuorumNotReached), "got %v", err)

	// a single Seed is its own majority
	require.NoError(t, seeds[0].client.Set(south[0], []byte("c")))
	require.True(t, hasRecord(seeds[3], south[0]))
}

func TestFixedWriteQuorum(t *testing.T) {
	config := testConfig()
	config.WriteQuorum = 3
	net, seeds := newCluster(t, config, "north", "north", "north")

	require.NoError(t, seeds[0].client.Set("a", []byte("1")))
	for _, s := range seeds {
		require.True(t, hasRecord(s, "a"))
	}

	net.setDown(seeds[2].addr)
	err := seeds[0].client.Set("b", []byte("2"))
	require.True(t, store.IsCode(err, store.RetCQuorumNotReached), "got %v", err)
}

func TestRoutingErrors(t *testing.T) {
	net, seeds := newCluster(t, testConfig(), "north", "south")
	r := seeds[0].Ring()
	south := keysOf(r, "south", 1)[0]

	t.Run("Misrouted", func(t *testing.T) {
		c := seeds[0].client.WithShard(ring.FieldID("north"))
		err := c.Set(south, []byte("x"))
		require.True(t, store.IsCode(err, store.RetCMisrouted), "got %v", err)
	})

	t.Run("PeerOpOnRoutedShard", func(t *testing.T) {
		_, err := seeds[0].client.Replicate([]db.Record{{Key: "a", Value: []byte("x"), Index: 1}})
		require.True(t, store.IsCode(err, store.RetCInvalidOperation), "got %v", err)
	})

	t.Run("UnknownShard", func(t *testing.T) {
		err := seeds[0].client.WithShard(ring.FieldID("east")).Set("a", []byte("x"))
		require.Error(t, err)
	})

	t.Run("FieldUnreachable", func(t *testing.T) {
		net.setDown(seeds[1].addr)
		err := seeds[0].client.Set(south, []byte("x"))
		require.True(t, store.IsCode(err, store.RetCNotFound), "got %v", err)
	})
}

func TestMembershipChangesRing(t *testing.T) {
	net, seeds := newCluster(t, testConfig(), "north", "south")
	south := keysOf(seeds[0].Ring(), "south", 1)[0]

	net.leave(seeds[1].Passport())
	require.Equal(t, []string{"north"}, seeds[0].Ring().Fields())

	require.NoError(t, seeds[0].client.Set(south, []byte("x")))
	require.True(t, hasRecord(seeds[0], south))
}

func TestReadRepair(t *testing.T) {
	config := testConfig()
	config.ReadQuorum = 3
	_, seeds := newCluster(t, config, "north", "north", "north")

	// a write only one replica has seen
	require.NoError(t, seeds[1].replica.Set("k", []byte("fresh")))

	value, ok, err := seeds[0].client.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fresh", string(value))

	require.True(t, hasRecord(seeds[0], "k"))
	require.Eventually(t, func() bool { return hasRecord(seeds[2], "k") }, time.Second, 5*time.Millisecond)
}

func TestReadQuorumNotReached(t *testing.T) {
	config := testConfig()
	config.ReadQuorum = 2
	net, seeds := newCluster(t, config, "north", "north")

	require.NoError(t, seeds[0].client.Set("k", []byte("v")))
	net.setDown(seeds[1].addr)

	_, _, err := seeds[0].client.Get("k")
	require.True(t, store.IsCode(err, store.RetCQuorumNotReached), "got %v", err)
}

func TestAntiEntropy(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "north", "north", "north")

	require.NoError(t, seeds[0].replica.Set("a", []byte("1")))
	require.NoError(t, seeds[0].replica.Set("b", []byte("2")))
	require.NoError(t, seeds[2].replica.Set("c", []byte("3")))

	report, err := seeds[0].VerifyField(context.Background())
	require.NoError(t, err)
	require.False(t, report.Consistent)
	require.Len(t, report.Replicas, 2)

	n, err := seeds[0].SyncWith(seeds[1].Passport())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = seeds[2].SyncWith(seeds[0].Passport())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = seeds[1].SyncWith(seeds[0].Passport())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	root, count, err := seeds[0].Root()
	require.NoError(t, err)
	require.Equal(t, 3, count)
	for _, s := range seeds {
		other, _, err := s.Root()
		require.NoError(t, err)
		require.Equal(t, root, other)

		report, err := s.client.Verify()
		require.NoError(t, err)
		require.True(t, report.Consistent, report.String())
	}

	// in sync replicas have nothing to repair
	n, err = seeds[0].AntiEntropy()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAntiEntropyKeepsNewestVersion(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "north", "north")

	require.NoError(t, seeds[0].replica.Set("k", []byte("old")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, seeds[1].replica.Set("k", []byte("new")))

	_, err := seeds[0].SyncWith(seeds[1].Passport())
	require.NoError(t, err)

	for _, s := range seeds {
		value, ok, err := s.replica.Get("k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "new", string(value))
	}
}

func TestSyncWithOtherField(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "north", "south")
	_, err := seeds[0].SyncWith(seeds[1].Passport())
	require.Error(t, err)
}

func TestProofs(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "north", "south")
	r := seeds[0].Ring()
	south := keysOf(r, "south", 2)

	require.NoError(t, seeds[0].client.Set(south[0], []byte("moss")))

	proof, err := seeds[0].client.Proof(south[0])
	require.NoError(t, err)
	require.NotNil(t, proof.Record)
	require.Equal(t, "moss", string(proof.Record.Value))
	require.NoError(t, proof.Verify(south[0]))

	root, _, err := seeds[1].Root()
	require.NoError(t, err)
	require.Equal(t, root, proof.Root)

	absent, err := seeds[0].client.Proof(south[1])
	require.NoError(t, err)
	require.Nil(t, absent.Record)
	require.NoError(t, absent.Verify(south[1]))
	require.Error(t, absent.Verify(south[0]))
}

func TestSeedInfo(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "north", "north", "south")

	p, err := seeds[1].client.Passport()
	require.NoError(t, err)
	require.Equal(t, seeds[1].Passport().SeedID, p.SeedID)

	members, err := seeds[0].client.Members()
	require.NoError(t, err)
	require.Len(t, members, 3)
	require.Equal(t, seeds[0].Passport().SeedID, members[0].SeedID)
}

func TestMetrics(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "north", "south")
	south := keysOf(seeds[0].Ring(), "south", 1)[0]
	require.NoError(t, seeds[0].client.Set(south, []byte("x")))

	var buf bytes.Buffer
	seeds[0].WritePrometheus(&buf)
	out := buf.String()
	require.Contains(t, out, "sphagnum_forwarded_total 1")
	require.Contains(t, out, `sphagnum_requests_total{op="set"} 1`)
	require.Contains(t, out, "sphagnum_fields 2")
}

func TestNewRejectsWrongStore(t *testing.T) {
	n := newMemNet()
	ser := serializer.NewBinarySerializer()
	pool := path.NewPool(common.ClientConfig{}, func() transport.IRPCClientTransport { return &memTransport{net: n} }, ser)

	c, err := client.NewClient(common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{"nowhere"}},
	}, &memTransport{net: n}, ser)
	require.NoError(t, err)

	quorum := passport.New("north", "a", passport.ModeQuorum)
	_, err = New(testConfig(), c, &fakeMembers{net: n, self: *quorum}, pool)
	require.Error(t, err)

	st := lstore.NewLocalStore(func() db.KVDB { return moss.NewMossDB(&moss.DBOptions{NumShards: 1}) }, nil)
	defer st.Close()
	raft := passport.New("north", "b", passport.ModeRaft)
	_, err = New(testConfig(), st, &fakeMembers{net: n, self: *raft}, pool)
	require.Error(t, err)

	bad := testConfig()
	bad.MerkleDepth = 99
	_, err = New(bad, st, &fakeMembers{net: n, self: *quorum}, pool)
	require.Error(t, err)
}

func TestCallDropsOnlyDeadPaths(t *testing.T) {
	_, seeds := newCluster(t, testConfig(), "meadow", "meadow")
	s := seeds[0]
	peer := s.fieldPeers()[0]
	pool := s.dialer.(*path.Pool)

	require.NoError(t, s.call(peer, func(*client.Client) error { return nil }))
	require.Equal(t, 1, pool.Len())

	for _, reqErr := range []error{
		errors.New("failed to send request after 1 attempts: request timed out after 1s"),
		store.NewError(store.RetCQuorumNotReached, "1 of 2 replicas acknowledged"),
	} {
		err := s.call(peer, func(*client.Client) error { return reqErr })
		require.ErrorIs(t, err, reqErr)
		require.Equal(t, 1, pool.Len(), "path dropped after %v", reqErr)
	}

	err := s.call(peer, func(*client.Client) error {
		return fmt.Errorf("failed to send request after 1 attempts: %w", transport.ErrConnClosed)
	})
	require.ErrorIs(t, err, transport.ErrConnClosed)
	require.Equal(t, 0, pool.Len())

	// the next call dials again
	require.NoError(t, s.call(peer, func(*client.Client) error { return nil }))
	require.Equal(t, 1, pool.Len())
}
