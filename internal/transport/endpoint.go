package transport

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var ErrInvalidAddress = errors.New("invalid IPv6 address")

// Endpoint is the gateway's UDP/IPv6 address.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// ParseEndpoint accepts "2001:db8::1", "[2001:db8::1]" or a link-local
// address with a zone. IPv4 and IPv4-mapped addresses are rejected.
func ParseEndpoint(address string, port int) (Endpoint, error) {
	s := strings.TrimSpace(address)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	if !addr.Is6() || addr.Is4In6() {
		return Endpoint{}, fmt.Errorf("%w %q: not an IPv6 address", ErrInvalidAddress, address)
	}
	if port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	return Endpoint{Addr: addr, Port: uint16(port)}, nil
}

func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr, e.Port)
}

func (e Endpoint) IsValid() bool {
	return e.Addr.IsValid() && e.Port != 0
}

// String formats the endpoint as [addr]:port.
func (e Endpoint) String() string {
	return e.AddrPort().String()
}
