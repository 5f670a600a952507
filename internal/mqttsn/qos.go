package mqttsn

// QoS is the publish quality of service level.
type QoS uint8

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// QoSFromInt maps a caller supplied level onto a QoS. Anything outside
// {0,1,2} is published as QoS 0.
func QoSFromInt(level int) QoS {
	switch level {
	case 1:
		return AtLeastOnce
	case 2:
		return ExactlyOnce
	default:
		return AtMostOnce
	}
}

// Flag returns the QoS bits of the flags octet.
func (q QoS) Flag() byte {
	return byte(q) << 5 & FlagQoSMask
}

// QoSFromFlags extracts the QoS bits. The MQTT-SN value 0b11 (QoS -1) is
// reported as AtMostOnce.
func QoSFromFlags(flags byte) QoS {
	q := (flags & FlagQoSMask) >> 5
	if q > 2 {
		return AtMostOnce
	}
	return QoS(q)
}
