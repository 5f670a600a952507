package packet

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
)

// NewRegisterPacket asks the gateway for a topic ID. Clients always send
// topic ID 0.
func NewRegisterPacket(msgID uint16, topicName string) ([]byte, error) {
	return build(mqttsn.REGISTER,
		mqttsn.UInt16ToByte(0),
		mqttsn.UInt16ToByte(msgID),
		[]byte(topicName),
	)
}

// RegisterPacketPayloads is a REGISTER sent by the gateway.
type RegisterPacketPayloads struct {
	TopicID   uint16
	MsgID     uint16
	TopicName string
}

func ParseRegisterPacket(packet *mqttsn.Packet) (*RegisterPacketPayloads, error) {
	if err := expectType(packet, mqttsn.REGISTER); err != nil {
		return nil, err
	}
	topicID, err := packet.Payload.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("unable to read topic ID: %w", err)
	}
	msgID, err := packet.Payload.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("unable to read msg ID: %w", err)
	}
	return &RegisterPacketPayloads{
		TopicID:   topicID,
		MsgID:     msgID,
		TopicName: string(packet.Payload.ReadRest()),
	}, nil
}

func NewRegAckPacket(topicID, msgID uint16, rc mqttsn.ReturnCode) []byte {
	return mustBuild(mqttsn.REGACK,
		mqttsn.UInt16ToByte(topicID),
		mqttsn.UInt16ToByte(msgID),
		[]byte{byte(rc)},
	)
}

func ParseRegAckPacket(packet *mqttsn.Packet) (MsgIDAck, error) {
	if err := expectType(packet, mqttsn.REGACK); err != nil {
		return MsgIDAck{}, err
	}
	return readMsgIDAck(packet.Payload)
}
