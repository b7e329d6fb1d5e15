package path

import (
	"fmt"
	"net"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

var log = logger.GetLogger("path")

// EventType is the kind of a membership change
type EventType int

const (
	EventJoin EventType = iota
	EventLeave
	EventUpdate
)

func (t EventType) String() string {
	switch t {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Event reports a Seed that joined, left or changed its passport.
// Previous is set for updates only.
type Event struct {
	Type     EventType
	Passport passport.Passport
	Previous *passport.Passport
}

// Config configures the gossip layer of a Seed
type Config struct {
	BindAddr       string
	BindPort       int // 0 picks a free port
	AdvertiseAddr  string
	AdvertisePort  int
	Join           []string // gossip addresses of known Seeds
	ProbeInterval  time.Duration
	GossipInterval time.Duration
	// UpdateTimeout bounds how long UpdatePassport waits for the change to be broadcast
	UpdateTimeout time.Duration
}

// DefaultConfig returns a LAN configuration binding all interfaces
func DefaultConfig() Config {
	return Config{
		BindAddr:       "0.0.0.0",
		BindPort:       7946,
		ProbeInterval:  time.Second,
		GossipInterval: 200 * time.Millisecond,
		UpdateTimeout:  5 * time.Second,
	}
}

// Mesh is the gossip membership of a Seed. Every member announces its passport
// as node metadata; failure detection is the probe cycle of memberlist.
//
// Thread-safety: all methods are safe for concurrent use. Subscribers are called
// from the gossip goroutine and must not block.
type Mesh struct {
	list   *memberlist.Memberlist
	config Config

	mu    sync.RWMutex
	local passport.Passport
	meta  []byte

	peers *xsync.MapOf[string, passport.Passport] // seed id -> passport, without the local Seed

	subsMu sync.RWMutex
	subs   []func(Event)
}

// NewMesh starts gossiping with the given passport. Call Join to contact other Seeds.
func NewMesh(cfg Config, p passport.Passport) (*Mesh, error) {
	meta, err := p.Marshal()
	if err != nil {
		return nil, err
	}

	m := &Mesh{
		config: cfg,
		local:  p,
		meta:   meta,
		peers:  xsync.NewMapOf[string, passport.Passport](),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = p.SeedID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.AdvertiseAddr != "" {
		mlConfig.AdvertiseAddr = cfg.AdvertiseAddr
	}
	if cfg.AdvertisePort > 0 {
		mlConfig.AdvertisePort = cfg.AdvertisePort
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	mlConfig.Delegate = (*meshDelegate)(m)
	mlConfig.Events = (*meshEvents)(m)
	mlConfig.Logger = common.NewStdLogger("path")

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to start gossip: %w", err)
	}
	m.list = list

	log.Infof("gossiping as %s on %s", p.SeedID, m.Addr())
	return m, nil
}

// Join contacts the given Seeds and returns how many answered
func (m *Mesh) Join(addrs []string) (int, error) {
	if len(addrs) == 0 {
		return 0, nil
	}
	n, err := m.list.Join(addrs)
	if err != nil {
		return n, fmt.Errorf("failed to join %v: %w", addrs, err)
	}
	log.Infof("joined mesh through %d of %d seed(s)", n, len(addrs))
	return n, nil
}

// Addr returns the gossip address other Seeds join through
func (m *Mesh) Addr() string {
	node := m.list.LocalNode()
	return net.JoinHostPort(node.Addr.String(), strconv.Itoa(int(node.Port)))
}

// Local returns the passport of the local Seed
func (m *Mesh) Local() passport.Passport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.local
}

// UpdatePassport replaces the local passport and broadcasts it
func (m *Mesh) UpdatePassport(p passport.Passport) error {
	meta, err := p.Marshal()
	if err != nil {
		return err
	}
	m.mu.Lock()
	if p.SeedID != m.local.SeedID {
		m.mu.Unlock()
		return fmt.Errorf("%w: seed id cannot change", passport.ErrInvalidPassport)
	}
	m.local = p
	m.meta = meta
	m.mu.Unlock()

	return m.list.UpdateNode(m.config.UpdateTimeout)
}

// Peers returns the passports of all live Seeds except the local one, ordered by Seed ID
func (m *Mesh) Peers() []passport.Passport {
	out := make([]passport.Passport, 0, m.peers.Size())
	m.peers.Range(func(_ string, p passport.Passport) bool {
		out = append(out, p)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SeedID < out[j].SeedID })
	return out
}

// FieldPeers returns the live Seeds of a Field except the local one
func (m *Mesh) FieldPeers(field string) []passport.Passport {
	return slices.DeleteFunc(m.Peers(), func(p passport.Passport) bool { return p.Field != field })
}

// Fields returns the Fields announced by live Seeds, the local one included
func (m *Mesh) Fields() []string {
	set := map[string]struct{}{m.Local().Field: {}}
	m.peers.Range(func(_ string, p passport.Passport) bool {
		set[p.Field] = struct{}{}
		return true
	})
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Subscribe registers fn for membership events
func (m *Mesh) Subscribe(fn func(Event)) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs = append(m.subs, fn)
}

// Leave announces the departure of the local Seed and waits up to timeout for it to spread
func (m *Mesh) Leave(timeout time.Duration) error {
	return m.list.Leave(timeout)
}

// Shutdown stops gossiping without announcing the departure
func (m *Mesh) Shutdown() error {
	return m.list.Shutdown()
}

func (m *Mesh) emit(e Event) {
	log.Debugf("%s %s", e.Type, e.Passport.String())

	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	for _, fn := range m.subs {
		fn(e)
	}
}

// --------------------------------------------------------------------------
// memberlist callbacks
// --------------------------------------------------------------------------

// meshDelegate serves the local passport as node metadata
type meshDelegate Mesh

func (d *meshDelegate) NodeMeta(limit int) []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.meta) > limit {
		log.Errorf("passport of %d bytes exceeds the metadata limit of %d bytes", len(d.meta), limit)
		return nil
	}
	return d.meta
}

func (d *meshDelegate) NotifyMsg([]byte)                           {}
func (d *meshDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *meshDelegate) LocalState(join bool) []byte                { return nil }
func (d *meshDelegate) MergeRemoteState(buf []byte, join bool)     {}

// meshEvents keeps the peer map in sync with memberlist
type meshEvents Mesh

func (e *meshEvents) mesh() *Mesh {
	return (*Mesh)(e)
}

func (e *meshEvents) isLocal(node *memberlist.Node) bool {
	return node.Name == e.mesh().Local().SeedID
}

func (e *meshEvents) NotifyJoin(node *memberlist.Node) {
	if e.isLocal(node) {
		return
	}
	p, err := passport.Unmarshal(node.Meta)
	if err != nil {
		log.Warningf("ignoring seed %s at %s: %v", node.Name, node.Addr, err)
		return
	}
	e.peers.Store(node.Name, *p)
	e.mesh().emit(Event{Type: EventJoin, Passport: *p})
}

func (e *meshEvents) NotifyLeave(node *memberlist.Node) {
	if e.isLocal(node) {
		return
	}
	p, ok := e.peers.LoadAndDelete(node.Name)
	if !ok {
		return
	}
	e.mesh().emit(Event{Type: EventLeave, Passport: p})
}

func (e *meshEvents) NotifyUpdate(node *memberlist.Node) {
	if e.isLocal(node) {
		return
	}
	p, err := passport.Unmarshal(node.Meta)
	if err != nil {
		log.Warningf("ignoring update of seed %s: %v", node.Name, err)
		return
	}
	prev, loaded := e.peers.Load(node.Name)
	e.peers.Store(node.Name, *p)
	if !loaded {
		e.mesh().emit(Event{Type: EventJoin, Passport: *p})
		return
	}
	e.mesh().emit(Event{Type: EventUpdate, Passport: *p, Previous: &prev})
}
