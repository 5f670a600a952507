// Package publisher sends application payloads to named topics at the
// requested quality of service.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/packet"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/session"
)

type Session interface {
	IsConnected() bool
	SessionID() string
	NextMsgID() uint16
	Send(data []byte) error
	Request(ctx context.Context, kind session.AckKind, msgID uint16, data []byte, timeout time.Duration) (*mqttsn.Packet, error)
}

type Resolver interface {
	Resolve(ctx context.Context, name string) (uint16, error)
	Forget(name string) bool
}

// Ack describes a publish that completed.
type Ack struct {
	Topic       string
	TopicID     uint16
	MsgID       uint16
	QoS         mqttsn.QoS
	PayloadSize int
}

type Option func(*Publisher)

// WithMaxPayload bounds the payload of a single PUBLISH in bytes.
func WithMaxPayload(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.maxPayload = n
		}
	}
}

func WithReporter(r *event.Reporter) Option {
	return func(p *Publisher) {
		p.reporter = r
	}
}

type Publisher struct {
	session    Session
	resolver   Resolver
	maxPayload int
	reporter   *event.Reporter
}

func New(s Session, r Resolver, opts ...Option) *Publisher {
	p := &Publisher{
		session:    s,
		resolver:   r,
		maxPayload: 128,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish resolves topic and sends payload. qos outside 0..2 is treated as
// 0. QoS 0 returns once the datagram is sent; QoS 1 and 2 wait for the
// gateway's acknowledgment.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte, qos int) (Ack, error) {
	level := mqttsn.QoSFromInt(qos)
	start := time.Now()
	ack, err := p.publish(ctx, topic, payload, level)

	outcome := event.Outcome{
		Kind:        event.KindPublish,
		SessionID:   p.session.SessionID(),
		Topic:       topic,
		TopicID:     ack.TopicID,
		MsgID:       ack.MsgID,
		QoS:         int(level),
		PayloadSize: len(payload),
		Latency:     time.Since(start),
	}
	if err != nil {
		outcome.Err = err
		var perr *PublishError
		if errors.As(err, &perr) {
			outcome.ErrorKind = perr.Kind.Error()
		}
	}
	p.reporter.Report(outcome)
	return ack, err
}

func (p *Publisher) publish(ctx context.Context, topic string, payload []byte, qos mqttsn.QoS) (Ack, error) {
	ack := Ack{Topic: topic, QoS: qos, PayloadSize: len(payload)}
	fail := func(kind, err error) (Ack, error) {
		return ack, &PublishError{Topic: topic, QoS: qos, Kind: kind, Err: err}
	}

	if !p.session.IsConnected() {
		return fail(session.ErrNotConnected, nil)
	}
	if len(payload) > p.maxPayload {
		return fail(ErrPayloadTooLarge, fmt.Errorf("%d bytes exceeds %d", len(payload), p.maxPayload))
	}

	topicID, err := p.resolver.Resolve(ctx, topic)
	if err != nil {
		return fail(ErrTopicUnavailable, err)
	}
	ack.TopicID = topicID
	if qos != mqttsn.AtMostOnce {
		ack.MsgID = p.session.NextMsgID()
	}

	data, err := packet.NewPublishPacket(&packet.PublishPacketPayloads{
		PacketFlag: packet.PublishPacketFlag{QoS: qos, TopicIDType: mqttsn.TopicIDNormal},
		TopicID:    topicID,
		MsgID:      ack.MsgID,
		Data:       payload,
	})
	if err != nil {
		return fail(ErrPayloadTooLarge, err)
	}

	if qos == mqttsn.AtMostOnce {
		if err := p.session.Send(data); err != nil {
			return fail(classify(err), err)
		}
		return ack, nil
	}

	reply, err := p.session.Request(ctx, session.KindPublish, ack.MsgID, data, 0)
	if err != nil {
		return fail(classify(err), err)
	}
	if reply.Header.Type == mqttsn.PUBACK {
		// PUBACK is the QoS 1 answer, and a QoS 2 rejection.
		if err := p.checkPubAck(topic, reply); err != nil {
			return fail(ErrPublishRejected, err)
		}
		if qos == mqttsn.AtLeastOnce {
			return ack, nil
		}
		return fail(ErrPublishRejected, errors.New("PUBACK where PUBREC was expected"))
	}
	if qos != mqttsn.ExactlyOnce || reply.Header.Type != mqttsn.PUBREC {
		return fail(ErrPublishRejected, fmt.Errorf("unexpected %s", reply.Header.Type))
	}

	reply, err = p.session.Request(ctx, session.KindPublish, ack.MsgID, packet.NewPubRelPacket(ack.MsgID), 0)
	if err != nil {
		return fail(classify(err), err)
	}
	if reply.Header.Type != mqttsn.PUBCOMP {
		return fail(ErrPublishRejected, fmt.Errorf("unexpected %s", reply.Header.Type))
	}
	return ack, nil
}

// checkPubAck returns an error for a non-accepted PUBACK. An invalid topic
// id means the gateway lost the registration, so it is forgotten here.
func (p *Publisher) checkPubAck(topic string, reply *mqttsn.Packet) error {
	pubAck, err := packet.ParsePubAckPacket(reply)
	if err != nil {
		return err
	}
	if pubAck.ReturnCode == mqttsn.Accepted {
		return nil
	}
	if pubAck.ReturnCode == mqttsn.RejectedInvalidTopicID {
		logger.Warn("Gateway no longer knows topic, dropping registration", "topic", topic, "topic_id", pubAck.TopicID)
		p.resolver.Forget(topic)
	}
	return fmt.Errorf("return code %s", pubAck.ReturnCode)
}
