package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
)

// maxDatagram covers the largest MQTT-SN message.
const maxDatagram = 0xFFFF

type UDPTransport struct {
	conn   *net.UDPConn
	closed atomic.Bool
	buf    []byte
}

// ListenUDP binds an IPv6 UDP socket on localPort (0 picks a free port).
func ListenUDP(localPort int) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.IPv6unspecified, Port: localPort})
	if err != nil {
		return nil, fmt.Errorf("%w: listen on port %d: %w", ErrIO, localPort, err)
	}
	logger.DebugF("UDP transport listening on %s", conn.LocalAddr())
	return &UDPTransport{conn: conn, buf: make([]byte, maxDatagram)}, nil
}

func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Send(to Endpoint, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	n, err := t.conn.WriteToUDPAddrPort(data, to.AddrPort())
	if err != nil {
		logger.ErrorF("[%s] Fail to send data, details: %v", to, err)
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short write %d of %d bytes", ErrIO, n, len(data))
	}
	logger.DebugF("[%s] Send %d bytes to gateway", to, n)
	return nil
}

// Receive must only be called from one goroutine at a time.
func (t *UDPTransport) Receive(timeout time.Duration) ([]byte, Endpoint, error) {
	if t.closed.Load() {
		return nil, Endpoint{}, ErrClosed
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
	n, from, err := t.conn.ReadFromUDPAddrPort(t.buf)
	if err != nil {
		return nil, Endpoint{}, classifyReadError(err, t.closed.Load())
	}
	data := make([]byte, n)
	copy(data, t.buf[:n])
	return data, Endpoint{Addr: from.Addr().Unmap(), Port: from.Port()}, nil
}

func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

// Invoke lets the transport be registered as a shutdown hook.
func (t *UDPTransport) Invoke(_ context.Context) error {
	return t.Close()
}

func classifyReadError(err error, closed bool) error {
	switch {
	case closed || errors.Is(err, net.ErrClosed):
		return ErrClosed
	case os.IsTimeout(err):
		return ErrTimeout
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}
