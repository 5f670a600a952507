package packet

import "github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"

func NewDisconnectPacket() []byte {
	return mustBuild(mqttsn.DISCONNECT)
}
