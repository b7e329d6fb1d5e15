package server

import (
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//	s.Register(0, seed.HandleRouted)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		handlers:   xsync.NewMapOf[uint64, MessageHandler](),
	}
	transport.RegisterHandler(s.Handle)
	return s
}

// RPCServer dispatches the requests a transport receives to the handler
// registered for their shard id.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	handlers   *xsync.MapOf[uint64, MessageHandler]
}

// Register installs the handler of a shard id, replacing any previous handler
func (s *RPCServer) Register(shardID uint64, handler MessageHandler) {
	s.handlers.Store(shardID, handler)
}

// RegisterStore serves a store through an adapter under a shard id
func (s *RPCServer) RegisterStore(shardID uint64, st store.IStore, adapter IRPCServerAdapter) {
	s.Register(shardID, func(req *common.Message) *common.Message {
		return adapter.Handle(req, st)
	})
}

// Unregister removes the handler of a shard id
func (s *RPCServer) Unregister(shardID uint64) {
	s.handlers.Delete(shardID)
}

// Handle decodes a request, runs the handler of its shard and encodes the
// response. It is the transport.ServerHandleFunc of the server.
func (s *RPCServer) Handle(shardID uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	handler, ok := s.handlers.Load(shardID)
	switch {
	case !ok:
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardID))
	default:
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			respMsg = handler(&msg)
		}
	}
	if respMsg == nil {
		respMsg = common.NewErrorResponse("handler returned no response")
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize %s response: %v", respMsg.MsgType, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// Serve starts the transport and blocks until it is closed
func (s *RPCServer) Serve() error {
	Logger.Infof("Starting RPC server")
	Logger.Infof(s.config.String())
	return s.transport.Listen(s.config)
}

// Close stops the transport
func (s *RPCServer) Close() error {
	return s.transport.Close()
}
