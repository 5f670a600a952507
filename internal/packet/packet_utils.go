package packet

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
)

// build prefixes the concatenated body parts with the MQTT-SN header.
func build(t mqttsn.MsgType, parts ...[]byte) ([]byte, error) {
	bodyLen := 0
	for _, p := range parts {
		bodyLen += len(p)
	}
	header, err := mqttsn.EncodeHeader(t, bodyLen)
	if err != nil {
		return nil, err
	}
	packet := make([]byte, 0, len(header)+bodyLen)
	packet = append(packet, header...)
	for _, p := range parts {
		packet = append(packet, p...)
	}
	return packet, nil
}

// mustBuild is build for messages whose size is bounded well below the
// header limit.
func mustBuild(t mqttsn.MsgType, parts ...[]byte) []byte {
	packet, err := build(t, parts...)
	if err != nil {
		panic(err)
	}
	return packet
}

func expectType(packet *mqttsn.Packet, types ...mqttsn.MsgType) error {
	for _, t := range types {
		if packet.Header.Type == t {
			return nil
		}
	}
	return fmt.Errorf("unexpected %s packet, expected %v", packet.Header.Type, types)
}

// MsgIDAck is the body shared by REGACK and PUBACK.
type MsgIDAck struct {
	TopicID    uint16
	MsgID      uint16
	ReturnCode mqttsn.ReturnCode
}

func readMsgIDAck(payload *mqttsn.Payload) (MsgIDAck, error) {
	var result MsgIDAck
	topicID, err := payload.ReadUint16()
	if err != nil {
		return result, fmt.Errorf("unable to read topic ID: %w", err)
	}
	msgID, err := payload.ReadUint16()
	if err != nil {
		return result, fmt.Errorf("unable to read msg ID: %w", err)
	}
	rc, err := payload.ReadByte()
	if err != nil {
		return result, fmt.Errorf("unable to read return code: %w", err)
	}
	result.TopicID = topicID
	result.MsgID = msgID
	result.ReturnCode = mqttsn.ReturnCode(rc)
	return result, nil
}

// MsgID returns the message id carried by REGACK, PUBACK, PUBREC, PUBREL and
// PUBCOMP, and false for every other type.
func MsgID(packet *mqttsn.Packet) (uint16, bool) {
	ctx := packet.Payload.Context
	switch packet.Header.Type {
	case mqttsn.REGACK, mqttsn.PUBACK:
		return uint16(ctx[2])<<8 | uint16(ctx[3]), true
	case mqttsn.PUBREC, mqttsn.PUBREL, mqttsn.PUBCOMP:
		return uint16(ctx[0])<<8 | uint16(ctx[1]), true
	}
	return 0, false
}
