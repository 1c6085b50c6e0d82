// Package transport provides the byte streams Modbus runs over
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrClosed is returned by operations on a closed transport
var ErrClosed = errors.New("transport closed")

// TCPTransport is a Modbus TCP connection
type TCPTransport struct {
	conn         net.Conn
	mu           sync.RWMutex
	writeTimeout time.Duration
	closed       bool
}

// DialTCP connects to address
func DialTCP(ctx context.Context, address string, timeout time.Duration) (*TCPTransport, error) {
	d := net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial TCP: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return &TCPTransport{conn: conn, writeTimeout: 3 * time.Second}, nil
}

// SetWriteTimeout sets the write timeout
func (t *TCPTransport) SetWriteTimeout(d time.Duration) {
	t.mu.Lock()
	t.writeTimeout = d
	t.mu.Unlock()
}

// Read blocks until data arrives or the connection closes
func (t *TCPTransport) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

// Write sends p in full or fails
func (t *TCPTransport) Write(p []byte) (int, error) {
	t.mu.RLock()
	closed := t.closed
	writeTimeout := t.writeTimeout
	t.mu.RUnlock()

	if closed {
		return 0, ErrClosed
	}
	if writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return 0, fmt.Errorf("set write deadline: %w", err)
		}
	}
	n, err := t.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("write TCP: %w", err)
	}
	return n, nil
}

// Close closes the connection
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// LocalAddr returns the local address
func (t *TCPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RemoteAddr returns the remote address
func (t *TCPTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// IsClosed returns true if the transport is closed
func (t *TCPTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
