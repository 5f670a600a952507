package packet

// CONNECT, CONNACK and the will exchange.

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
)

var ErrInvalidClientID = errors.New("client ID must be 1 to 23 bytes")

func ValidateClientID(clientID string) error {
	if n := len(clientID); n == 0 || n > mqttsn.MaxClientIDLength {
		return fmt.Errorf("%w, got %d", ErrInvalidClientID, n)
	}
	return nil
}

// ConnectPacketFlag holds the CONNECT flags a client may set.
type ConnectPacketFlag struct {
	Will         bool
	CleanSession bool
}

func (f ConnectPacketFlag) byte() byte {
	var b byte
	if f.Will {
		b |= mqttsn.FlagWill
	}
	if f.CleanSession {
		b |= mqttsn.FlagCleanSession
	}
	return b
}

// NewConnectPacket builds CONNECT. keepAlive is in seconds. The client ID
// must have been checked with ValidateClientID.
func NewConnectPacket(clientID string, keepAlive uint16, flag ConnectPacketFlag) []byte {
	return mustBuild(mqttsn.CONNECT,
		[]byte{flag.byte(), mqttsn.ProtocolID},
		mqttsn.UInt16ToByte(keepAlive),
		[]byte(clientID),
	)
}

func ParseConnAckPacket(packet *mqttsn.Packet) (mqttsn.ReturnCode, error) {
	if err := expectType(packet, mqttsn.CONNACK); err != nil {
		return 0, err
	}
	rc, err := packet.Payload.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("unable to read return code: %w", err)
	}
	return mqttsn.ReturnCode(rc), nil
}

// NewWillTopicPacket answers WILLTOPICREQ.
func NewWillTopicPacket(topic string, qos mqttsn.QoS, retain bool) ([]byte, error) {
	flags := qos.Flag()
	if retain {
		flags |= mqttsn.FlagRetain
	}
	return build(mqttsn.WILLTOPIC, []byte{flags}, []byte(topic))
}

// NewWillMsgPacket answers WILLMSGREQ.
func NewWillMsgPacket(message []byte) ([]byte, error) {
	return build(mqttsn.WILLMSG, message)
}
