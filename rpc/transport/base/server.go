package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

const (
	defaultBufferSize     = 64 * 1024
	defaultWorkersPerConn = 16
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// IConnUpgrader is implemented by server connectors that tune accepted connections
type IConnUpgrader interface {
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector  IServerConnector
	handler    transport.ServerHandleFunc
	config     common.ServerConfig
	bufferPool *sync.Pool
	workers    int

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with per-connection worker pool.
// Buffer size and workers per connection are taken from the config passed to Listen.
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     make(map[net.Conn]struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	bufferSize := config.Transport.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	t.bufferPool = &sync.Pool{
		New: func() interface{} {
			return make([]byte, bufferSize)
		},
	}

	// minimum one worker per connection
	t.workers = config.Transport.WorkersPerConn
	if t.workers <= 0 {
		t.workers = defaultWorkersPerConn
	}

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		listener.Close()
		return nil
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Transport.Endpoint, t.workers)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if upgrader, ok := t.connector.(IConnUpgrader); ok {
			if err := upgrader.UpgradeConnection(conn, config); err != nil {
				Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			}
		}

		if !t.track(conn) {
			conn.Close()
			return nil
		}

		// Handle the connection in a goroutine
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Swap(true) {
		return nil
	}
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	for conn := range t.conns {
		conn.Close()
	}
	t.conns = nil
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// track registers an accepted connection, returns false once the transport is closed
func (t *serverTransport) track(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return false
	}
	t.conns[conn] = struct{}{}
	return true
}

func (t *serverTransport) untrack(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns != nil {
		delete(t.conns, conn)
	}
}

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer t.untrack(conn)
	defer conn.Close()

	timeout := t.config.Timeout()

	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.workers)

	var wg sync.WaitGroup

	// Protects writes to the connection
	var connMutex sync.Mutex

	// Handler function that processes requests in worker goroutines
	handleResponse := func(shardID, requestID uint64, data []byte) {
		defer func() {
			<-workerSemaphore
			wg.Done()
		}()

		start := time.Now()
		resp := t.handler(shardID, data)
		Logger.Debugf("Processed request for shard %d with requestID %d took %s", shardID, requestID, time.Since(start))

		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		// Write the response with the same requestID
		if err := writeFrame(conn, shardID, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	handleRequest := func() error {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %w", err)
			}
		}

		buf := t.bufferPool.Get().([]byte)

		shardID, requestID, data, err := readFrame(conn, buf)
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Blocks once the worker limit of the connection is reached
		workerSemaphore <- struct{}{}
		wg.Add(1)

		go func() {
			defer t.bufferPool.Put(buf)
			handleResponse(shardID, requestID, data)
		}()

		return nil
	}

	for {
		err := handleRequest()

		// Case EOF: Connection closed by client
		if err == io.EOF {
			Logger.Debugf("Connection closed by client")
			break
		}

		if err != nil {
			var netErr net.Error
			switch {
			case t.closed.Load() || errors.Is(err, net.ErrClosed):
			case errors.As(err, &netErr) && netErr.Timeout():
				Logger.Debugf("Closing idle connection from %s", conn.RemoteAddr())
			default:
				Logger.Errorf("Error handling request: %v", err)
			}
			break
		}
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
