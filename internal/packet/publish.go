package packet

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
)

type PublishPacketFlag struct {
	DUP         bool
	QoS         mqttsn.QoS
	Retain      bool
	TopicIDType mqttsn.TopicIDType
}

func (f PublishPacketFlag) byte() byte {
	b := f.QoS.Flag() | byte(f.TopicIDType)&mqttsn.FlagTopicIDMask
	if f.DUP {
		b |= mqttsn.FlagDUP
	}
	if f.Retain {
		b |= mqttsn.FlagRetain
	}
	return b
}

type PublishPacketPayloads struct {
	PacketFlag PublishPacketFlag
	TopicID    uint16
	MsgID      uint16
	Data       []byte
}

// NewPublishPacket builds PUBLISH. MsgID is forced to 0 for QoS 0.
func NewPublishPacket(p *PublishPacketPayloads) ([]byte, error) {
	msgID := p.MsgID
	if p.PacketFlag.QoS == mqttsn.AtMostOnce {
		msgID = 0
	}
	return build(mqttsn.PUBLISH,
		[]byte{p.PacketFlag.byte()},
		mqttsn.UInt16ToByte(p.TopicID),
		mqttsn.UInt16ToByte(msgID),
		p.Data,
	)
}

func ParsePublishPacket(packet *mqttsn.Packet) (*PublishPacketPayloads, error) {
	if err := expectType(packet, mqttsn.PUBLISH); err != nil {
		return nil, err
	}
	flags, err := packet.Payload.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("unable to read flags: %w", err)
	}
	result := &PublishPacketPayloads{
		PacketFlag: PublishPacketFlag{
			DUP:         flags&mqttsn.FlagDUP != 0,
			QoS:         mqttsn.QoSFromFlags(flags),
			Retain:      flags&mqttsn.FlagRetain != 0,
			TopicIDType: mqttsn.TopicIDType(flags & mqttsn.FlagTopicIDMask),
		},
	}
	if result.TopicID, err = packet.Payload.ReadUint16(); err != nil {
		return nil, fmt.Errorf("unable to read topic ID: %w", err)
	}
	if result.MsgID, err = packet.Payload.ReadUint16(); err != nil {
		return nil, fmt.Errorf("unable to read msg ID: %w", err)
	}
	result.Data = packet.Payload.ReadRest()
	return result, nil
}

func NewPubAckPacket(topicID, msgID uint16, rc mqttsn.ReturnCode) []byte {
	return mustBuild(mqttsn.PUBACK,
		mqttsn.UInt16ToByte(topicID),
		mqttsn.UInt16ToByte(msgID),
		[]byte{byte(rc)},
	)
}

func ParsePubAckPacket(packet *mqttsn.Packet) (MsgIDAck, error) {
	if err := expectType(packet, mqttsn.PUBACK); err != nil {
		return MsgIDAck{}, err
	}
	return readMsgIDAck(packet.Payload)
}

// NewPubRecPacket, NewPubRelPacket and NewPubCompPacket build the QoS 2
// handshake messages, which carry only the msg ID.
func NewPubRecPacket(msgID uint16) []byte {
	return mustBuild(mqttsn.PUBREC, mqttsn.UInt16ToByte(msgID))
}

func NewPubRelPacket(msgID uint16) []byte {
	return mustBuild(mqttsn.PUBREL, mqttsn.UInt16ToByte(msgID))
}

func NewPubCompPacket(msgID uint16) []byte {
	return mustBuild(mqttsn.PUBCOMP, mqttsn.UInt16ToByte(msgID))
}
