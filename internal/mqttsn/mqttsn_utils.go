package mqttsn

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxMessageLength is the largest message the three-octet length form can
// describe.
const MaxMessageLength = 0xFFFF

var ErrShortMessage = errors.New("insufficient bytes")

func UInt16ToByte(number uint16) []byte {
	result := make([]byte, 2)
	binary.BigEndian.PutUint16(result, number)
	return result
}

// EncodeHeader returns the header for a message whose body is bodyLen
// bytes. Messages longer than 255 bytes use the 0x01 + uint16 length form.
func EncodeHeader(t MsgType, bodyLen int) ([]byte, error) {
	if total := bodyLen + 2; total <= 0xFF {
		return []byte{byte(total), byte(t)}, nil
	}
	total := bodyLen + 4
	if total > MaxMessageLength {
		return nil, fmt.Errorf("%s message of %d bytes exceeds %d", t, total, MaxMessageLength)
	}
	return []byte{0x01, byte(total >> 8), byte(total), byte(t)}, nil
}

func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("header: %w", ErrShortMessage)
	}
	if data[0] != 0x01 {
		return &Header{Length: int(data[0]), Type: MsgType(data[1]), Size: 2}, nil
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("extended header: %w", ErrShortMessage)
	}
	return &Header{
		Length: int(binary.BigEndian.Uint16(data[1:3])),
		Type:   MsgType(data[3]),
		Size:   4,
	}, nil
}

// ReadPacket decodes one datagram. The length field must match the
// datagram size and the body must satisfy the type's minimum length.
func ReadPacket(data []byte) (*Packet, error) {
	header, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if header.Length != len(data) {
		return nil, fmt.Errorf("length field %d does not match datagram size %d", header.Length, len(data))
	}
	body := data[header.Size:]
	if !ValidateLength(header.Type, len(body)) {
		return nil, fmt.Errorf("%d byte body is not valid for %s (0x%02x)", len(body), header.Type, byte(header.Type))
	}
	return &Packet{
		Header: header,
		Payload: &Payload{
			Context:    body,
			ContextLen: len(body),
			CurrentPtr: 0,
		},
	}, nil
}

func ValidateLength(t MsgType, bodyLen int) bool {
	minimum, ok := minBodyLength[t]
	return ok && bodyLen >= minimum
}

func (p *Payload) CheckRemainingLength() bool {
	return p.CurrentPtr < p.ContextLen
}

func (p *Payload) ReadByte() (byte, error) {
	if p.CurrentPtr >= p.ContextLen {
		return 0, ErrShortMessage
	}
	b := p.Context[p.CurrentPtr]
	p.CurrentPtr++
	return b, nil
}

func (p *Payload) ReadUint16() (uint16, error) {
	if p.CurrentPtr+2 > p.ContextLen {
		return 0, ErrShortMessage
	}
	v := binary.BigEndian.Uint16(p.Context[p.CurrentPtr:])
	p.CurrentPtr += 2
	return v, nil
}

// ReadRest consumes the remainder of the body.
func (p *Payload) ReadRest() []byte {
	rest := p.Context[p.CurrentPtr:p.ContextLen]
	p.CurrentPtr = p.ContextLen
	return rest
}
