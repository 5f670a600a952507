package session

import (
	"sync"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
)

// AckKind groups the requests that can be outstanding. At most one request
// per kind is in flight.
type AckKind int

const (
	KindConnect AckKind = iota
	KindRegister
	KindPublish
	KindDisconnect
	kindCount
)

func (k AckKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindRegister:
		return "register"
	case KindPublish:
		return "publish"
	case KindDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// waiter is the slot the foreground blocks on and the runtime loop fills.
type waiter struct {
	msgID    uint16
	matchAny bool
	ch       chan *mqttsn.Packet
}

type pendingTable struct {
	mu    sync.Mutex
	slots [kindCount]*waiter
}

// arm replaces any previous waiter of the same kind. With matchAny the
// waiter accepts every message routed to its kind.
func (p *pendingTable) arm(kind AckKind, msgID uint16, matchAny bool) *waiter {
	w := &waiter{msgID: msgID, matchAny: matchAny, ch: make(chan *mqttsn.Packet, 4)}
	p.mu.Lock()
	p.slots[kind] = w
	p.mu.Unlock()
	return w
}

func (p *pendingTable) disarm(kind AckKind, w *waiter) {
	p.mu.Lock()
	if p.slots[kind] == w {
		p.slots[kind] = nil
	}
	p.mu.Unlock()
}

// deliver hands pkt to the armed waiter of kind and reports whether it was
// accepted. Messages with the wrong id, or arriving while no request is
// outstanding, are rejected.
func (p *pendingTable) deliver(kind AckKind, msgID uint16, pkt *mqttsn.Packet) bool {
	p.mu.Lock()
	w := p.slots[kind]
	p.mu.Unlock()
	if w == nil || (!w.matchAny && w.msgID != msgID) {
		return false
	}
	select {
	case w.ch <- pkt:
		return true
	default:
		return false
	}
}

func (p *pendingTable) armed(kind AckKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[kind] != nil
}
