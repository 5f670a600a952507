// Package transport moves MQTT-SN datagrams between the client and its
// gateway. It has no protocol knowledge.
package transport

import (
	"errors"
	"time"
)

var (
	ErrTimeout = errors.New("receive timeout")
	ErrClosed  = errors.New("transport closed")
	ErrIO      = errors.New("transport i/o failure")
)

// Transport is a datagram socket. Send and Receive may be called from
// different goroutines.
type Transport interface {
	Send(to Endpoint, data []byte) error
	// Receive blocks for at most timeout and returns ErrTimeout when nothing
	// arrived.
	Receive(timeout time.Duration) ([]byte, Endpoint, error)
	Close() error
}
