package packet

import "github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"

func NewPingReqPacket() []byte {
	return mustBuild(mqttsn.PINGREQ)
}

func NewPingRespPacket() []byte {
	return mustBuild(mqttsn.PINGRESP)
}
