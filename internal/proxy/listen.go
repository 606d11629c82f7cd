// Package proxy holds small listener-side plumbing shared by both firewall
// backends: a keepalive-applying net.Listener wrapper.
package proxy

import (
	"context"
	"fmt"
	"net"
	"time"
)

// defaultKeepAlive matches a conservative "detect a dead peer within a
// couple of minutes" keepalive profile for the redirected TCP connections
// this process accepts.
var defaultKeepAlive = net.KeepAliveConfig{
	Enable:   true,
	Idle:     45 * time.Second,
	Interval: 45 * time.Second,
	Count:    3,
}

// ListenTCP listens on network/addr and returns a net.Listener that applies
// defaultKeepAlive to accepted TCP connections.
func ListenTCP(ctx context.Context, network, addr string) (net.Listener, error) {
	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return Wrap(ln), nil
}

// Wrap applies defaultKeepAlive to ln's accepted TCP connections.
func Wrap(ln net.Listener) net.Listener {
	return &KeepAliveListener{Listener: ln, KeepAliveConfig: defaultKeepAlive}
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to any
// accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and applies KeepAliveConfig if the
// connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}

	return conn, nil
}
