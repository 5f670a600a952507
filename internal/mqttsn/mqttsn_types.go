// Package mqttsn defines the MQTT-SN v1.2 wire types shared by the packet
// builders and the session runtime.
package mqttsn

// MsgType is the MQTT-SN message type octet.
type MsgType byte

const (
	ADVERTISE     MsgType = 0x00
	SEARCHGW      MsgType = 0x01
	GWINFO        MsgType = 0x02
	CONNECT       MsgType = 0x04
	CONNACK       MsgType = 0x05
	WILLTOPICREQ  MsgType = 0x06
	WILLTOPIC     MsgType = 0x07
	WILLMSGREQ    MsgType = 0x08
	WILLMSG       MsgType = 0x09
	REGISTER      MsgType = 0x0a
	REGACK        MsgType = 0x0b
	PUBLISH       MsgType = 0x0c
	PUBACK        MsgType = 0x0d
	PUBCOMP       MsgType = 0x0e
	PUBREC        MsgType = 0x0f
	PUBREL        MsgType = 0x10
	SUBSCRIBE     MsgType = 0x12
	SUBACK        MsgType = 0x13
	UNSUBSCRIBE   MsgType = 0x14
	UNSUBACK      MsgType = 0x15
	PINGREQ       MsgType = 0x16
	PINGRESP      MsgType = 0x17
	DISCONNECT    MsgType = 0x18
	WILLTOPICUPD  MsgType = 0x1a
	WILLTOPICRESP MsgType = 0x1b
	WILLMSGUPD    MsgType = 0x1c
	WILLMSGRESP   MsgType = 0x1d
)

var MsgTypeMap = map[MsgType]string{
	ADVERTISE:     "ADVERTISE",
	SEARCHGW:      "SEARCHGW",
	GWINFO:        "GWINFO",
	CONNECT:       "CONNECT",
	CONNACK:       "CONNACK",
	WILLTOPICREQ:  "WILLTOPICREQ",
	WILLTOPIC:     "WILLTOPIC",
	WILLMSGREQ:    "WILLMSGREQ",
	WILLMSG:       "WILLMSG",
	REGISTER:      "REGISTER",
	REGACK:        "REGACK",
	PUBLISH:       "PUBLISH",
	PUBACK:        "PUBACK",
	PUBCOMP:       "PUBCOMP",
	PUBREC:        "PUBREC",
	PUBREL:        "PUBREL",
	SUBSCRIBE:     "SUBSCRIBE",
	SUBACK:        "SUBACK",
	UNSUBSCRIBE:   "UNSUBSCRIBE",
	UNSUBACK:      "UNSUBACK",
	PINGREQ:       "PINGREQ",
	PINGRESP:      "PINGRESP",
	DISCONNECT:    "DISCONNECT",
	WILLTOPICUPD:  "WILLTOPICUPD",
	WILLTOPICRESP: "WILLTOPICRESP",
	WILLMSGUPD:    "WILLMSGUPD",
	WILLMSGRESP:   "WILLMSGRESP",
}

func (t MsgType) String() string {
	if name, ok := MsgTypeMap[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// minBodyLength is the smallest body (message minus header) each type may
// carry. Types missing from the map are not valid MQTT-SN messages.
var minBodyLength = map[MsgType]int{
	ADVERTISE:     3, // gw id, duration
	SEARCHGW:      1, // radius
	GWINFO:        1, // gw id
	CONNECT:       5, // flags, protocol id, duration, client id >= 1
	CONNACK:       1, // return code
	WILLTOPICREQ:  0,
	WILLTOPIC:     0, // empty body deletes the will
	WILLMSGREQ:    0,
	WILLMSG:       0,
	REGISTER:      5, // topic id, msg id, name >= 1
	REGACK:        5, // topic id, msg id, return code
	PUBLISH:       5, // flags, topic id, msg id
	PUBACK:        5, // topic id, msg id, return code
	PUBCOMP:       2, // msg id
	PUBREC:        2,
	PUBREL:        2,
	SUBSCRIBE:     4, // flags, msg id, topic >= 1
	SUBACK:        6, // flags, topic id, msg id, return code
	UNSUBSCRIBE:   4,
	UNSUBACK:      2,
	PINGREQ:       0,
	PINGRESP:      0,
	DISCONNECT:    0,
	WILLTOPICUPD:  0,
	WILLTOPICRESP: 1,
	WILLMSGUPD:    0,
	WILLMSGRESP:   1,
}

// ReturnCode is carried by CONNACK, REGACK, PUBACK and SUBACK.
type ReturnCode byte

const (
	Accepted               ReturnCode = 0x00
	RejectedCongestion     ReturnCode = 0x01
	RejectedInvalidTopicID ReturnCode = 0x02
	RejectedNotSupported   ReturnCode = 0x03
)

func (rc ReturnCode) String() string {
	switch rc {
	case Accepted:
		return "accepted"
	case RejectedCongestion:
		return "rejected: congestion"
	case RejectedInvalidTopicID:
		return "rejected: invalid topic ID"
	case RejectedNotSupported:
		return "rejected: not supported"
	}
	return "rejected: unknown return code"
}

// Flags octet layout.
const (
	FlagDUP          byte = 0x80
	FlagQoSMask      byte = 0x60
	FlagRetain       byte = 0x10
	FlagWill         byte = 0x08
	FlagCleanSession byte = 0x04
	FlagTopicIDMask  byte = 0x03
)

// TopicIDType occupies the two low bits of the flags octet.
type TopicIDType byte

const (
	TopicIDNormal     TopicIDType = 0x00
	TopicIDPredefined TopicIDType = 0x01
	TopicIDShortName  TopicIDType = 0x02
)

// ProtocolID is the only protocol id defined by MQTT-SN v1.2.
const ProtocolID byte = 0x01

// MaxClientIDLength is the upper bound on the CONNECT client id.
const MaxClientIDLength = 23

// Header is the MQTT-SN message header. Length counts the whole message,
// header included.
type Header struct {
	Length int
	Type   MsgType
	Size   int // 2 or 4 header octets
}

// Payload is a read cursor over a message body.
type Payload struct {
	Context    []byte
	ContextLen int
	CurrentPtr int
}

// Packet is a decoded datagram.
type Packet struct {
	Header  *Header
	Payload *Payload
}
