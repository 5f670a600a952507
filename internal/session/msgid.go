package session

import "sync"

// msgIDs hands out MQTT-SN message ids 1..65535; 0 is never used.
type msgIDs struct {
	mu        sync.Mutex
	currentID uint16
}

func newMsgIDs() *msgIDs {
	return &msgIDs{currentID: 1}
}

func (m *msgIDs) next() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.currentID
	m.currentID++
	if m.currentID == 0 {
		m.currentID = 1
	}
	return id
}
