// Package session owns the association with one MQTT-SN gateway: the
// connect handshake, the runtime receive loop and the table of requests
// waiting for an acknowledgment.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/packet"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/subscription"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport"
)

// Will is handed to the gateway during the connect handshake.
type Will struct {
	Topic   string
	Message []byte
	QoS     mqttsn.QoS
	Retain  bool
}

type Manager struct {
	transport transport.Transport
	opts      options
	ids       *msgIDs
	pending   pendingTable
	kindMu    [kindCount]sync.Mutex

	connectMu sync.Mutex
	state     atomic.Int32
	endpoint  atomic.Pointer[transport.Endpoint]
	sessionID atomic.Pointer[string]

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(t transport.Transport, opts ...Option) (*Manager, error) {
	if t == nil {
		return nil, errors.New("session: nil transport")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := packet.ValidateClientID(o.clientID); err != nil {
		return nil, err
	}
	if o.keepAlive < 0 || o.keepAlive > 65535*time.Second {
		return nil, fmt.Errorf("keep-alive %s out of range", o.keepAlive)
	}
	return &Manager{
		transport: t,
		opts:      o,
		ids:       newMsgIDs(),
	}, nil
}

// Connect associates the client with the gateway at address:port. CONNECT
// is retransmitted until CONNACK arrives or the attempts run out. Calling
// Connect again while connected re-runs the handshake.
func (m *Manager) Connect(ctx context.Context, address string, port int, will *Will) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	start := time.Now()
	ep, err := transport.ParseEndpoint(address, port)
	if err != nil {
		return m.connectFailed(start, &ConnectError{
			Gateway: net.JoinHostPort(address, strconv.Itoa(port)),
			Kind:    ErrInvalidAddress,
			Err:     err,
		})
	}

	willTopic, willMsg, err := encodeWill(will)
	if err != nil {
		return m.connectFailed(start, &ConnectError{Gateway: ep.String(), Kind: ErrInvalidWill, Err: err})
	}

	m.endpoint.Store(&ep)
	m.state.Store(int32(Connecting))

	connect := packet.NewConnectPacket(m.opts.clientID, uint16(m.opts.keepAlive/time.Second), packet.ConnectPacketFlag{
		Will:         will != nil,
		CleanSession: m.opts.cleanSession,
	})
	w := m.pending.arm(KindConnect, 0, true)
	defer m.pending.disarm(KindConnect, w)

	for attempt := 1; attempt <= m.opts.connectAttempts; attempt++ {
		logger.DebugF("Sending CONNECT to %s (attempt %d/%d)", ep, attempt, m.opts.connectAttempts)
		if err := m.transport.Send(ep, connect); err != nil {
			return m.connectFailed(start, &ConnectError{Gateway: ep.String(), Kind: ErrIO, Err: err})
		}
		rc, err := m.awaitConnAck(ctx, ep, w, willTopic, willMsg)
		switch {
		case err == nil && rc == mqttsn.Accepted:
			m.connected(start, ep)
			return nil
		case err == nil:
			return m.connectFailed(start, &ConnectError{Gateway: ep.String(), Kind: ErrConnectionRejected, ReturnCode: rc})
		case errors.Is(err, ErrAckTimeout):
			logger.WarnF("No CONNACK from %s within %s (attempt %d/%d)", ep, m.opts.retryTimeout, attempt, m.opts.connectAttempts)
		case errors.Is(err, ErrIO):
			return m.connectFailed(start, &ConnectError{Gateway: ep.String(), Kind: ErrIO, Err: err})
		default:
			return m.connectFailed(start, &ConnectError{Gateway: ep.String(), Kind: ErrGatewayUnreachable, Err: err})
		}
	}
	return m.connectFailed(start, &ConnectError{
		Gateway: ep.String(),
		Kind:    ErrGatewayUnreachable,
		Err:     fmt.Errorf("no CONNACK after %d attempts", m.opts.connectAttempts),
	})
}

func encodeWill(will *Will) (topic, msg []byte, err error) {
	if will == nil {
		return nil, nil, nil
	}
	if will.Topic == "" {
		return nil, nil, errors.New("empty will topic")
	}
	if topic, err = packet.NewWillTopicPacket(will.Topic, will.QoS, will.Retain); err != nil {
		return nil, nil, fmt.Errorf("will topic: %w", err)
	}
	if msg, err = packet.NewWillMsgPacket(will.Message); err != nil {
		return nil, nil, fmt.Errorf("will message: %w", err)
	}
	return topic, msg, nil
}

// awaitConnAck waits one retry period for CONNACK, answering the will
// requests the gateway sends in between.
func (m *Manager) awaitConnAck(ctx context.Context, ep transport.Endpoint, w *waiter, willTopic, willMsg []byte) (mqttsn.ReturnCode, error) {
	timer := time.NewTimer(m.opts.retryTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return 0, ErrAckTimeout
		case pkt := <-w.ch:
			var reply []byte
			switch pkt.Header.Type {
			case mqttsn.CONNACK:
				rc, err := packet.ParseConnAckPacket(pkt)
				if err != nil {
					logger.WarnF("Dropping malformed CONNACK: %v", err)
					continue
				}
				return rc, nil
			case mqttsn.WILLTOPICREQ:
				reply = willTopic
			case mqttsn.WILLMSGREQ:
				reply = willMsg
			}
			if reply == nil {
				logger.WarnF("Gateway sent %s but no will is configured", pkt.Header.Type)
				continue
			}
			if err := m.transport.Send(ep, reply); err != nil {
				return 0, asIOError(err)
			}
		}
	}
}

func (m *Manager) connected(start time.Time, ep transport.Endpoint) {
	previous := m.SessionID()
	if previous == "" || m.opts.cleanSession {
		id := uuid.NewString()
		m.sessionID.Store(&id)
		if previous != "" {
			m.opts.slots.Reset()
		}
	}
	m.state.Store(int32(Connected))
	logger.Info("Connected to gateway", "gateway", ep.String(), "client_id", m.opts.clientID, "session", m.SessionID())
	m.opts.reporter.Report(event.Outcome{
		Kind:      event.KindConnect,
		SessionID: m.SessionID(),
		ClientID:  m.opts.clientID,
		Gateway:   ep.String(),
		Latency:   time.Since(start),
	})
}

func (m *Manager) connectFailed(start time.Time, err *ConnectError) error {
	m.state.Store(int32(Disconnected))
	m.opts.reporter.Report(event.Outcome{
		Kind:      event.KindConnect,
		ClientID:  m.opts.clientID,
		Gateway:   err.Gateway,
		Latency:   time.Since(start),
		ErrorKind: err.Kind.Error(),
		Err:       err,
	})
	return err
}

// Disconnect ends the session. The manager is Disconnected afterwards even
// when the gateway does not answer.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	ep := m.endpoint.Load()
	if ep == nil || m.State() == Disconnected {
		return ErrNotConnected
	}
	start := time.Now()
	w := m.pending.arm(KindDisconnect, 0, true)
	defer m.pending.disarm(KindDisconnect, w)
	m.state.Store(int32(Disconnected))

	outcome := event.Outcome{
		Kind:      event.KindDisconnect,
		SessionID: m.SessionID(),
		ClientID:  m.opts.clientID,
		Gateway:   ep.String(),
	}
	var err error
	if sendErr := m.transport.Send(*ep, packet.NewDisconnectPacket()); sendErr != nil {
		err = asIOError(sendErr)
	} else if _, waitErr := m.await(ctx, w, m.opts.requestTimeout); waitErr != nil {
		if errors.Is(waitErr, ErrAckTimeout) {
			logger.WarnF("Gateway %s did not confirm DISCONNECT", ep)
		} else {
			err = waitErr
		}
	}
	outcome.Latency = time.Since(start)
	if err != nil {
		outcome.Err = err
		outcome.ErrorKind = errorKind(err)
	}
	m.opts.reporter.Report(outcome)
	return err
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) IsConnected() bool {
	return m.State() == Connected
}

// Endpoint returns the gateway of the last Connect call.
func (m *Manager) Endpoint() (transport.Endpoint, bool) {
	ep := m.endpoint.Load()
	if ep == nil {
		return transport.Endpoint{}, false
	}
	return *ep, true
}

// SessionID identifies the current gateway session. It changes on every
// clean-session connect and is empty before the first one.
func (m *Manager) SessionID() string {
	if id := m.sessionID.Load(); id != nil {
		return *id
	}
	return ""
}

func (m *Manager) ClientID() string {
	return m.opts.clientID
}

func (m *Manager) NextMsgID() uint16 {
	return m.ids.next()
}

func (m *Manager) RequestTimeout() time.Duration {
	return m.opts.requestTimeout
}

func (m *Manager) Reporter() *event.Reporter {
	return m.opts.reporter
}

func (m *Manager) Subscriptions() *subscription.Table {
	return m.opts.slots
}

// Send transmits a message that expects no acknowledgment.
func (m *Manager) Send(data []byte) error {
	ep := m.endpoint.Load()
	if ep == nil || !m.IsConnected() {
		return ErrNotConnected
	}
	if err := m.transport.Send(*ep, data); err != nil {
		return asIOError(err)
	}
	return nil
}

// Request sends data and waits until the runtime loop delivers the
// acknowledgment of the given kind carrying msgID. Requests of the same kind
// are serialised. A timeout of zero uses the configured request timeout.
func (m *Manager) Request(ctx context.Context, kind AckKind, msgID uint16, data []byte, timeout time.Duration) (*mqttsn.Packet, error) {
	if kind < 0 || kind >= kindCount {
		return nil, fmt.Errorf("unknown request kind %d", kind)
	}
	if timeout <= 0 {
		timeout = m.opts.requestTimeout
	}
	m.kindMu[kind].Lock()
	defer m.kindMu[kind].Unlock()

	ep := m.endpoint.Load()
	if ep == nil || !m.IsConnected() {
		return nil, ErrNotConnected
	}
	w := m.pending.arm(kind, msgID, false)
	defer m.pending.disarm(kind, w)
	if err := m.transport.Send(*ep, data); err != nil {
		return nil, asIOError(err)
	}
	return m.await(ctx, w, timeout)
}

func (m *Manager) await(ctx context.Context, w *waiter, timeout time.Duration) (*mqttsn.Packet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case pkt := <-w.ch:
		return pkt, nil
	case <-timer.C:
		return nil, ErrAckTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// errorKind names the failure class of err for outcome events.
func errorKind(err error) string {
	for _, kind := range []error{
		ErrInvalidAddress, ErrInvalidWill, ErrGatewayUnreachable, ErrConnectionRejected,
		ErrNotConnected, ErrAckTimeout, ErrIO,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "unknown"
}
