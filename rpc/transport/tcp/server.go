package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
	"github.com/sphagnumdb/sphagnum/rpc/transport/base"
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return applySocketConf(conn, config.Transport.SocketConf)
}

// applySocketConf applies the socket options of conf to a TCP connection
func applySocketConf(conn net.Conn, conf common.SocketConf) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm if configured
	if err := tcpConn.SetNoDelay(conf.TCPNoDelay); err != nil {
		return err
	}

	if conf.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(conf.WriteBufferSize); err != nil {
			return err
		}
	}

	if conf.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(conf.ReadBufferSize); err != nil {
			return err
		}
	}

	if conf.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(conf.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	if conf.TCPLingerSec >= 0 {
		if err := tcpConn.SetLinger(conf.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport
func NewTCPServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}
