package seed

import (
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/lib/path"
	"github.com/sphagnumdb/sphagnum/lib/ring"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/lib/store/lstore"
	"github.com/sphagnumdb/sphagnum/rpc/client"
	"github.com/sphagnumdb/sphagnum/rpc/server"
)

var log = logger.GetLogger("seed")

// Membership is the view of the cluster a Seed routes and replicates with.
// path.Mesh implements it.
type Membership interface {
	// Local returns the passport of this Seed
	Local() passport.Passport
	// Peers returns the passports of all other live Seeds
	Peers() []passport.Passport
	// Subscribe registers fn for membership changes
	Subscribe(fn func(path.Event))
}

// Dialer opens clients to other Seeds. path.Pool implements it.
type Dialer interface {
	Get(addr string) (*client.Client, error)
	Drop(addr string)
}

// Stores whose write index is driven by a clock implement one of these
type (
	ticker     interface{ Tick() }
	raftTicker interface{ Tick() error }
)

// Seed is a storage node. It serves one replica of its Field, routes key
// operations of other Fields to their owners and keeps its replica in sync
// with the other Seeds of the Field.
//
// In quorum mode the store is a *lstore.LocalStore and the Seed replicates
// records itself. In raft mode the store replicates through its raft group
// and the Seed only routes.
//
// Thread-safety: all methods are safe for concurrent use
type Seed struct {
	config  Config
	local   passport.Passport
	fieldID uint64

	store   store.IStore
	replica *lstore.LocalStore // nil in raft mode
	adapter server.IRPCServerAdapter

	members Membership
	dialer  Dialer
	ring    *ring.Ring
	metrics *seedMetrics

	rngMu sync.Mutex
	rng   *rand.Rand

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New creates a Seed for the Field announced by the local passport of members
func New(config Config, st store.IStore, members Membership, dialer Dialer) (*Seed, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	local := members.Local()
	if err := local.Validate(); err != nil {
		return nil, err
	}

	s := &Seed{
		config:  config,
		local:   local,
		fieldID: ring.FieldID(local.Field),
		store:   st,
		adapter: server.NewIStoreServerAdapter(),
		members: members,
		dialer:  dialer,
		ring:    ring.New(config.VirtualNodes),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:    make(chan struct{}),
	}

	switch local.Mode {
	case passport.ModeQuorum:
		replica, ok := st.(*lstore.LocalStore)
		if !ok {
			return nil, fmt.Errorf("quorum fields need a local store, got %T", st)
		}
		s.replica = replica
	case passport.ModeRaft:
		if _, ok := st.(*lstore.LocalStore); ok {
			return nil, fmt.Errorf("raft fields need a distributed store")
		}
	}

	s.metrics = newSeedMetrics(s)
	s.syncRing()
	members.Subscribe(s.onMembership)
	return s, nil
}

// Passport returns the passport of the Seed
func (s *Seed) Passport() passport.Passport {
	return s.local
}

// FieldID returns the shard id other Seeds address this Field with
func (s *Seed) FieldID() uint64 {
	return s.fieldID
}

// Ring returns the Field placement the Seed routes with
func (s *Seed) Ring() *ring.Ring {
	return s.ring
}

// Register installs the handlers of the Seed on an RPC server:
// routed client requests on shard id 0 and requests for the Field on its id.
func (s *Seed) Register(srv *server.RPCServer) {
	srv.Register(ring.RoutedShardID, s.HandleRouted)
	srv.Register(s.fieldID, s.HandleField)
}

// Start runs the clock ticker and the anti-entropy loop until Stop is called
func (s *Seed) Start() {
	s.startOnce.Do(func() {
		if s.config.TickInterval > 0 {
			s.loop(s.config.TickInterval, s.tick)
		}
		if s.replica != nil && s.config.AntiEntropyInterval > 0 {
			s.loop(s.config.AntiEntropyInterval, func() {
				if _, err := s.AntiEntropy(); err != nil {
					log.Warningf("anti-entropy round failed: %v", err)
				}
			})
		}
		log.Infof("seed %s serving field %s (%s)", s.local.SeedID, s.local.Field, s.local.Mode)
	})
}

// Stop ends the background loops and waits for them
func (s *Seed) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

// tick advances the write index of the store so TTL marks expire without writes
func (s *Seed) tick() {
	switch t := s.store.(type) {
	case ticker:
		t.Tick()
	case raftTicker:
		if err := t.Tick(); err != nil {
			log.Debugf("clock tick failed: %v", err)
		}
	}
}

func (s *Seed) loop(interval time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				fn()
			}
		}
	}()
}

// --------------------------------------------------------------------------
// Membership
// --------------------------------------------------------------------------

// fieldPeers returns the live Seeds of the local Field except this one
func (s *Seed) fieldPeers() []passport.Passport {
	return s.seedsOf(s.local.Field)
}

// seedsOf returns the live Seeds of a Field except this one
func (s *Seed) seedsOf(field string) []passport.Passport {
	return slices.DeleteFunc(s.members.Peers(), func(p passport.Passport) bool {
		return p.Field != field
	})
}

// syncRing puts every Field announced by a live Seed on the ring and removes the others
func (s *Seed) syncRing() {
	live := map[string]struct{}{s.local.Field: {}}
	for _, p := range s.members.Peers() {
		live[p.Field] = struct{}{}
	}
	for f := range live {
		if s.ring.Add(f) {
			log.Infof("field %s joined the ring", f)
		}
	}
	for _, f := range s.ring.Fields() {
		if _, ok := live[f]; !ok && s.ring.Remove(f) {
			log.Infof("field %s left the ring", f)
		}
	}
}

func (s *Seed) onMembership(e path.Event) {
	switch e.Type {
	case path.EventLeave:
		s.dialer.Drop(e.Passport.RPCAddr)
	case path.EventUpdate:
		if e.Previous != nil && e.Previous.RPCAddr != e.Passport.RPCAddr {
			s.dialer.Drop(e.Previous.RPCAddr)
		}
	}
	s.syncRing()
}

// shuffle returns the Seeds in random order
func (s *Seed) shuffle(peers []passport.Passport) []passport.Passport {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	return peers
}

// peerClient returns a client addressing the Field of p
func (s *Seed) peerClient(p passport.Passport) (*client.Client, error) {
	c, err := s.dialer.Get(p.RPCAddr)
	if err != nil {
		return nil, err
	}
	return c.WithShard(ring.FieldID(p.Field)), nil
}
