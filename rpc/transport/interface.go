package transport

import (
	"errors"

	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// Errors of client transports whose connections are gone. A transport that
// returns them has to be connected again, other errors concern a single request.
var (
	ErrConnClosed   = errors.New("connection is closed")
	ErrNoConnection = errors.New("no active connections available")
)

// ServerHandleFunc turns the payload of a request frame for shardId into the
// payload of the response frame
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport accepts connections and hands every request to the
// registered handler. Requests of one connection may be handled concurrently.
type IRPCServerTransport interface {
	// RegisterHandler must be called before Listen
	RegisterHandler(handler ServerHandleFunc)
	// Listen serves on config.Endpoint and blocks. It returns nil once Close was called.
	Listen(config common.ServerConfig) error
	// Close stops the listener and drops open connections
	Close() error
}

// IRPCClientTransport sends request payloads to one or more endpoints of the same Seed
type IRPCClientTransport interface {
	// Connect dials the endpoints of config. Calling it again replaces all connections.
	Connect(config common.ClientConfig) error
	// Send delivers req to shardId and waits for the response, retrying on
	// transport failures as configured
	Send(shardId uint64, req []byte) (resp []byte, err error)
	Close() error
}
