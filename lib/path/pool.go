package path

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sphagnumdb/sphagnum/rpc/client"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

// TransportFactory creates an unconnected client transport
type TransportFactory func() transport.IRPCClientTransport

// Pool keeps one connected client per peer RPC address. Clients are created on
// first use and closed when the peer is dropped.
//
// Thread-safety: all methods are safe for concurrent use
type Pool struct {
	config       common.ClientConfig
	newTransport TransportFactory
	serializer   serializer.IRPCSerializer
	clients      *xsync.MapOf[string, *client.Client]
}

// NewPool creates a pool. config is used as a template, its endpoints are
// replaced with the address of the peer.
func NewPool(config common.ClientConfig, newTransport TransportFactory, serializer serializer.IRPCSerializer) *Pool {
	return &Pool{
		config:       config,
		newTransport: newTransport,
		serializer:   serializer,
		clients:      xsync.NewMapOf[string, *client.Client](),
	}
}

// Get returns the client of a peer, connecting to it if needed.
// The client sends to shard id 0, use WithShard to address a Field.
// Concurrent first calls for one address may all dial; one client is kept.
func (p *Pool) Get(addr string) (*client.Client, error) {
	if c, ok := p.clients.Load(addr); ok {
		return c, nil
	}

	config := p.config
	config.Transport.Endpoints = []string{addr}
	c, err := client.NewClient(config, p.newTransport(), p.serializer)
	if err != nil {
		return nil, fmt.Errorf("failed to open path to %s: %w", addr, err)
	}

	kept, loaded := p.clients.LoadOrStore(addr, c)
	if loaded {
		_ = c.Close()
		return kept, nil
	}
	log.Debugf("opened path to %s", addr)
	return c, nil
}

// Drop closes and forgets the client of a peer
func (p *Pool) Drop(addr string) {
	if c, ok := p.clients.LoadAndDelete(addr); ok {
		if err := c.Close(); err != nil {
			log.Warningf("failed to close path to %s: %v", addr, err)
		}
		log.Debugf("closed path to %s", addr)
	}
}

// Len returns the number of open paths
func (p *Pool) Len() int {
	return p.clients.Size()
}

// Close closes all clients
func (p *Pool) Close() {
	p.clients.Range(func(addr string, _ *client.Client) bool {
		p.Drop(addr)
		return true
	})
}
