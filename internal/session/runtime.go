package session

import (
	"context"
	"errors"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/packet"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport"
)

// Message is an incoming PUBLISH for a bound subscription slot.
type Message struct {
	TopicID   uint16
	TopicName string
	QoS       mqttsn.QoS
	Retain    bool
	Data      []byte
}

type MessageHandler func(Message)

// WithMessageHandler sets the callback for incoming messages. It runs on the
// runtime loop and must not block.
func WithMessageHandler(h MessageHandler) Option {
	return func(o *options) {
		o.onMessage = h
	}
}

// Start launches the runtime loop. It is a no-op when the loop is running.
// A loop that ended because its context was canceled is started again.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.done != nil {
		select {
		case <-m.done:
		default:
			return
		}
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Stop ends the runtime loop and waits for it to return.
func (m *Manager) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Invoke disconnects from the gateway and stops the runtime loop, so the
// manager can be registered as a shutdown hook. The loop is revived for the
// DISCONNECT exchange when the context it was started with is already done.
func (m *Manager) Invoke(ctx context.Context) error {
	var err error
	if m.IsConnected() {
		m.Start(context.Background())
		err = m.Disconnect(ctx)
	}
	m.Stop()
	return err
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	logger.Debug("Runtime loop started")
	for {
		if ctx.Err() != nil {
			logger.Debug("Runtime loop stopped")
			return
		}
		data, from, err := m.transport.Receive(m.opts.pollInterval)
		switch {
		case err == nil:
			m.dispatch(from, data)
		case errors.Is(err, transport.ErrTimeout):
		case errors.Is(err, transport.ErrClosed):
			logger.Debug("Runtime loop stopped: transport closed")
			return
		default:
			logger.WarnF("Receive failed: %v", err)
		}
	}
}

func (m *Manager) dispatch(from transport.Endpoint, data []byte) {
	ep := m.endpoint.Load()
	if ep == nil || from != *ep {
		logger.DebugF("Dropping datagram from unknown source %s", from)
		return
	}
	pkt, err := mqttsn.ReadPacket(data)
	if err != nil {
		logger.DebugF("Dropping malformed datagram from %s: %v", from, err)
		return
	}

	switch t := pkt.Header.Type; t {
	case mqttsn.CONNACK, mqttsn.WILLTOPICREQ, mqttsn.WILLMSGREQ:
		m.route(KindConnect, 0, pkt)
	case mqttsn.REGACK:
		id, _ := packet.MsgID(pkt)
		m.route(KindRegister, id, pkt)
	case mqttsn.PUBACK, mqttsn.PUBREC, mqttsn.PUBCOMP:
		id, _ := packet.MsgID(pkt)
		m.route(KindPublish, id, pkt)
	case mqttsn.DISCONNECT:
		if !m.pending.deliver(KindDisconnect, 0, pkt) {
			m.gatewayDisconnected(*ep)
		}
	case mqttsn.PINGREQ:
		m.reply(*ep, packet.NewPingRespPacket())
	case mqttsn.PINGRESP:
		logger.Debug("PINGRESP received")
	case mqttsn.REGISTER:
		m.rejectRegister(*ep, pkt)
	case mqttsn.PUBLISH:
		m.deliverPublish(*ep, pkt)
	case mqttsn.PUBREL:
		if id, ok := packet.MsgID(pkt); ok {
			m.reply(*ep, packet.NewPubCompPacket(id))
		}
	default:
		logger.DebugF("Dropping unexpected %s", t)
	}
}

func (m *Manager) route(kind AckKind, msgID uint16, pkt *mqttsn.Packet) {
	if !m.pending.deliver(kind, msgID, pkt) {
		logger.DebugF("Dropping %s with msg id %d: no matching %s request", pkt.Header.Type, msgID, kind)
	}
}

func (m *Manager) reply(ep transport.Endpoint, data []byte) {
	if err := m.transport.Send(ep, data); err != nil {
		logger.WarnF("Unable to answer gateway %s: %v", ep, err)
	}
}

func (m *Manager) gatewayDisconnected(ep transport.Endpoint) {
	if m.State() == Disconnected {
		return
	}
	m.state.Store(int32(Disconnected))
	logger.Warn("Gateway closed the session", "gateway", ep.String())
	m.opts.reporter.Report(event.Outcome{
		Kind:      event.KindDisconnect,
		SessionID: m.SessionID(),
		ClientID:  m.opts.clientID,
		Gateway:   ep.String(),
		ErrorKind: ErrGatewayDisconnected.Error(),
		Err:       ErrGatewayDisconnected,
	})
}

// rejectRegister answers a gateway REGISTER. Topic names are only learned
// through subscriptions, which this client does not issue.
func (m *Manager) rejectRegister(ep transport.Endpoint, pkt *mqttsn.Packet) {
	reg, err := packet.ParseRegisterPacket(pkt)
	if err != nil {
		logger.DebugF("Dropping malformed REGISTER: %v", err)
		return
	}
	logger.Debug("Rejecting gateway REGISTER", "topic", reg.TopicName, "topic_id", reg.TopicID, "msg_id", reg.MsgID)
	m.reply(ep, packet.NewRegAckPacket(reg.TopicID, reg.MsgID, mqttsn.RejectedNotSupported))
}

func (m *Manager) deliverPublish(ep transport.Endpoint, pkt *mqttsn.Packet) {
	pub, err := packet.ParsePublishPacket(pkt)
	if err != nil {
		logger.DebugF("Dropping malformed PUBLISH: %v", err)
		return
	}
	slot, ok := m.opts.slots.Lookup(pub.TopicID)
	if !ok {
		logger.Debug("Dropping PUBLISH for unbound topic", "topic_id", pub.TopicID)
		if pub.PacketFlag.QoS != mqttsn.AtMostOnce {
			m.reply(ep, packet.NewPubAckPacket(pub.TopicID, pub.MsgID, mqttsn.RejectedInvalidTopicID))
		}
		return
	}

	switch pub.PacketFlag.QoS {
	case mqttsn.AtLeastOnce:
		m.reply(ep, packet.NewPubAckPacket(pub.TopicID, pub.MsgID, mqttsn.Accepted))
	case mqttsn.ExactlyOnce:
		m.reply(ep, packet.NewPubRecPacket(pub.MsgID))
	}
	if m.opts.onMessage == nil {
		logger.Info("Message received", "topic", slot.TopicName, "topic_id", pub.TopicID, "bytes", len(pub.Data))
		return
	}
	m.opts.onMessage(Message{
		TopicID:   pub.TopicID,
		TopicName: slot.TopicName,
		QoS:       pub.PacketFlag.QoS,
		Retain:    pub.PacketFlag.Retain,
		Data:      append([]byte(nil), pub.Data...),
	})
}
