package client

import (
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

// Client talks to a Seed over a transport. Requests are sent to the shard id of
// the client: 0 lets the Seed route key operations to the owning Field, the id
// of a Field addresses that Field directly.
type Client struct {
	shardId    uint64
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

var _ store.IStore = (*Client)(nil)

// NewClient connects the transport and returns a client for shard id 0
func NewClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Client, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}
	return NewClientFromTransport(0, transport, serializer), nil
}

// NewClientFromTransport wraps a connected transport
func NewClientFromTransport(
	shardId uint64,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *Client {
	return &Client{
		shardId:    shardId,
		transport:  transport,
		serializer: serializer,
	}
}

// WithShard returns a client sharing the transport that sends to another shard id
func (c *Client) WithShard(shardId uint64) *Client {
	return &Client{
		shardId:    shardId,
		transport:  c.transport,
		serializer: c.serializer,
	}
}

// ShardID returns the shard id requests are sent to
func (c *Client) ShardID() uint64 {
	return c.shardId
}

// Invoke sends a request as is and returns the response
func (c *Client) Invoke(req *common.Message) (*common.Message, error) {
	return invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
}

// Close closes the transport
func (c *Client) Close() error {
	return c.transport.Close()
}
