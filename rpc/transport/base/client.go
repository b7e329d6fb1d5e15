package base

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to an endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection
type clientConnection struct {
	conn         net.Conn
	endpoint     string
	stopCh       chan struct{} // Close signal for the reader goroutine
	requestChans *xsync.MapOf[uint64, chan responseResult]
	connMu       sync.Mutex // Protects the connection itself
	parent       *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex uint64      // Atomic counter for Round Robin
	nextRequestID uint64      // Atomic counter for unique request IDs
	stopping      atomic.Bool // Signals shutdown
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector:     connector,
		nextRequestID: 1,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()

	t.config = config
	t.stopping.Store(false)

	connectionsPerEP := max(1, config.Transport.ConnectionsPerEndpoint)
	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint:     endpoint,
				stopCh:       make(chan struct{}),
				requestChans: xsync.NewMapOf[uint64, chan responseResult](),
				parent:       t,
			}

			// Establish the initial connection using reconnect
			if err := clientConn.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)

			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			go clientConn.readResponses()
		}
	}

	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Debugf("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	timeout := t.config.Timeout()

	send := func(connection *clientConnection) ([]byte, error) {
		requestID := atomic.AddUint64(&t.nextRequestID, 1)

		respCh := make(chan responseResult, 1)
		connection.requestChans.Store(requestID, respCh)
		defer connection.requestChans.Delete(requestID)

		// Lock the connection only for writing
		connection.connMu.Lock()
		conn := connection.conn
		if conn == nil {
			connection.connMu.Unlock()
			return nil, transport.ErrConnClosed
		}
		if timeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		err := writeFrame(conn, shardId, requestID, req)
		connection.connMu.Unlock()

		if err != nil {
			return nil, err
		}

		var timeoutCh <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			timeoutCh = timer.C
		}

		select {
		case result := <-respCh:
			return result.data, result.err
		case <-timeoutCh:
			return nil, fmt.Errorf("request timed out after %s", timeout)
		case <-connection.stopCh:
			return nil, transport.ErrConnClosed
		}
	}

	// We always try at least once
	maxRetries := max(1, t.config.Transport.RetryCount)

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if t.stopping.Load() {
			return nil, fmt.Errorf("%w: transport is closed", transport.ErrConnClosed)
		}
		conn := t.getNextConnection()
		if conn == nil {
			return nil, transport.ErrNoConnection
		}

		data, err := send(conn)
		if err == nil {
			return data, nil
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, maxRetries, conn.endpoint, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	switch len(t.connections) {
	case 0:
		return nil
	case 1:
		return t.connections[0]
	}
	index := atomic.AddUint64(&t.nextConnIndex, 1) % uint64(len(t.connections))
	return t.connections[index]
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	defer t.connectionsMu.Unlock()

	for _, c := range t.connections {
		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
	}

	t.connections = nil
}

// stopped reports whether the connection was closed by its transport
func (c *clientConnection) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses() {
	for !c.stopped() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		// Responses arrive asynchronously, the request timeout is enforced in Send
		shardID, requestID, data, err := readFrame(conn, nil)
		if err != nil {
			if c.stopped() {
				return
			}

			// The connection is broken: fail all pending requests and reconnect
			c.requestChans.Range(func(id uint64, ch chan responseResult) bool {
				select {
				case ch <- responseResult{nil, fmt.Errorf("error reading response: %w", err)}:
				default:
				}
				return true
			})

			Logger.Debugf("Connection to %s lost: %v", c.endpoint, err)
			if err := c.reconnect(); err != nil {
				Logger.Errorf("Failed to reconnect to %s: %v", c.endpoint, err)
				return
			}
			continue
		}

		respCh, found := c.requestChans.Load(requestID)
		if !found {
			Logger.Warningf("Received response for unknown request ID %d with shard ID %d", requestID, shardID)
			continue
		}
		select {
		case respCh <- responseResult{data, nil}:
		default:
		}
	}
}

// reconnect establishes or restores a connection to the endpoint
func (c *clientConnection) reconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.stopped() {
		return transport.ErrConnClosed
	}

	conn, err := c.parent.connector.Connect(c.endpoint, c.parent.config.Timeout())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	c.conn = conn
	return nil
}
