// Package transporttest provides an in-memory MQTT-SN gateway that
// implements transport.Transport for tests.
package transporttest

import (
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/packet"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport"
)

// DefaultEndpoint is the address the gateway answers from unless changed.
var DefaultEndpoint = transport.Endpoint{
	Addr: mustAddr("2001:db8::1"),
	Port: 1883,
}

// Gateway answers CONNECT, the will exchange, REGISTER, PUBLISH (all QoS
// levels), PUBREL and DISCONNECT the way a well-behaved gateway would.
// Behaviour can be changed with the Set* methods at any time.
type Gateway struct {
	Endpoint transport.Endpoint

	mu          sync.Mutex
	inbox       chan []byte
	done        chan struct{}
	closed      bool
	sent        [][]byte
	counts      map[mqttsn.MsgType]int
	silent      bool
	drop        map[mqttsn.MsgType]bool
	sendErr     error
	connAck     mqttsn.ReturnCode
	regAck      mqttsn.ReturnCode
	pubAck      mqttsn.ReturnCode
	topics      map[string]uint16
	nextTopicID uint16
	published   []packet.PublishPacketPayloads
	willTopic   string
	willMsg     []byte
	regAcks     []packet.MsgIDAck
}

func New() *Gateway {
	return &Gateway{
		Endpoint:    DefaultEndpoint,
		inbox:       make(chan []byte, 64),
		done:        make(chan struct{}),
		counts:      make(map[mqttsn.MsgType]int),
		drop:        make(map[mqttsn.MsgType]bool),
		topics:      make(map[string]uint16),
		nextTopicID: 1,
	}
}

func (g *Gateway) Send(to transport.Endpoint, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return transport.ErrClosed
	}
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, append([]byte(nil), data...))

	pkt, err := mqttsn.ReadPacket(data)
	if err != nil {
		return nil
	}
	g.counts[pkt.Header.Type]++
	if to != g.Endpoint || g.silent || g.drop[pkt.Header.Type] {
		return nil
	}
	for _, reply := range g.respond(pkt) {
		g.inbox <- reply
	}
	return nil
}

func (g *Gateway) respond(pkt *mqttsn.Packet) [][]byte {
	switch pkt.Header.Type {
	case mqttsn.CONNECT:
		flags := pkt.Payload.Context[0]
		if flags&mqttsn.FlagWill != 0 {
			return [][]byte{{0x02, byte(mqttsn.WILLTOPICREQ)}}
		}
		return [][]byte{{0x03, byte(mqttsn.CONNACK), byte(g.connAck)}}
	case mqttsn.WILLTOPIC:
		if pkt.Payload.ContextLen > 0 {
			g.willTopic = string(pkt.Payload.Context[1:])
		}
		return [][]byte{{0x02, byte(mqttsn.WILLMSGREQ)}}
	case mqttsn.WILLMSG:
		g.willMsg = append([]byte(nil), pkt.Payload.Context...)
		return [][]byte{{0x03, byte(mqttsn.CONNACK), byte(g.connAck)}}
	case mqttsn.REGISTER:
		reg, err := packet.ParseRegisterPacket(pkt)
		if err != nil {
			return nil
		}
		if g.regAck != mqttsn.Accepted {
			return [][]byte{packet.NewRegAckPacket(0, reg.MsgID, g.regAck)}
		}
		id, ok := g.topics[reg.TopicName]
		if !ok {
			id = g.nextTopicID
			g.nextTopicID++
			g.topics[reg.TopicName] = id
		}
		return [][]byte{packet.NewRegAckPacket(id, reg.MsgID, mqttsn.Accepted)}
	case mqttsn.REGACK:
		ack, err := packet.ParseRegAckPacket(pkt)
		if err == nil {
			g.regAcks = append(g.regAcks, ack)
		}
	case mqttsn.PUBLISH:
		pub, err := packet.ParsePublishPacket(pkt)
		if err != nil {
			return nil
		}
		pub.Data = append([]byte(nil), pub.Data...)
		g.published = append(g.published, *pub)
		switch pub.PacketFlag.QoS {
		case mqttsn.AtLeastOnce:
			return [][]byte{packet.NewPubAckPacket(pub.TopicID, pub.MsgID, g.pubAck)}
		case mqttsn.ExactlyOnce:
			if g.pubAck != mqttsn.Accepted {
				return [][]byte{packet.NewPubAckPacket(pub.TopicID, pub.MsgID, g.pubAck)}
			}
			return [][]byte{packet.NewPubRecPacket(pub.MsgID)}
		}
	case mqttsn.PUBREL:
		if id, ok := packet.MsgID(pkt); ok {
			return [][]byte{packet.NewPubCompPacket(id)}
		}
	case mqttsn.DISCONNECT:
		return [][]byte{packet.NewDisconnectPacket()}
	}
	return nil
}

func (g *Gateway) Receive(timeout time.Duration) ([]byte, transport.Endpoint, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-g.inbox:
		return data, g.Endpoint, nil
	case <-g.done:
		return nil, transport.Endpoint{}, transport.ErrClosed
	case <-timer.C:
		return nil, transport.Endpoint{}, transport.ErrTimeout
	}
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.done)
	}
	return nil
}

// Inject queues an unsolicited datagram from the gateway.
func (g *Gateway) Inject(data []byte) {
	g.inbox <- data
}

// SetSilent makes the gateway swallow every request.
func (g *Gateway) SetSilent(silent bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.silent = silent
}

// SetDrop makes the gateway ignore requests of type t.
func (g *Gateway) SetDrop(t mqttsn.MsgType, drop bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drop[t] = drop
}

// SetSendError makes every Send fail with err. Nil restores normal sends.
func (g *Gateway) SetSendError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendErr = err
}

func (g *Gateway) SetConnAck(rc mqttsn.ReturnCode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connAck = rc
}

func (g *Gateway) SetRegAck(rc mqttsn.ReturnCode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.regAck = rc
}

func (g *Gateway) SetPubAck(rc mqttsn.ReturnCode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pubAck = rc
}

// Count returns how many well-formed messages of type t were sent to the
// gateway.
func (g *Gateway) Count(t mqttsn.MsgType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[t]
}

// Sends returns the number of Send calls that reached the gateway.
func (g *Gateway) Sends() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func (g *Gateway) Published() []packet.PublishPacketPayloads {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]packet.PublishPacketPayloads(nil), g.published...)
}

func (g *Gateway) TopicID(name string) (uint16, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.topics[name]
	return id, ok
}

func (g *Gateway) Will() (string, []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.willTopic, g.willMsg
}

// RegAcks returns the REGACKs the client sent in answer to gateway REGISTERs.
func (g *Gateway) RegAcks() []packet.MsgIDAck {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]packet.MsgIDAck(nil), g.regAcks...)
}
