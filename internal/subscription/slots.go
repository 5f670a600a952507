// Package subscription reserves the fixed set of slots that incoming
// PUBLISH messages are dispatched through.
package subscription

import (
	"errors"
	"sync"
)

var ErrNoFreeSlot = errors.New("no free subscription slot")

// Slot binds a gateway topic ID to the topic name it was subscribed under.
// A zero TopicID marks a free slot.
type Slot struct {
	TopicID   uint16
	TopicName string
}

// Table has a capacity fixed at construction. The runtime loop reads it
// while the foreground binds slots, so access is serialised.
type Table struct {
	mu    sync.RWMutex
	slots []Slot
}

func NewTable(capacity int) *Table {
	if capacity < 0 {
		capacity = 0
	}
	return &Table{slots: make([]Slot, capacity)}
}

func (t *Table) Capacity() int {
	return len(t.slots)
}

func (t *Table) Used() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.slots {
		if s.TopicID != 0 {
			n++
		}
	}
	return n
}

// Bind stores topicID in the first free slot, or refreshes the name of an
// existing binding for the same ID.
func (t *Table) Bind(topicID uint16, topicName string) error {
	if topicID == 0 {
		return errors.New("topic ID 0 is reserved")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	free := -1
	for i, s := range t.slots {
		if s.TopicID == topicID {
			t.slots[i].TopicName = topicName
			return nil
		}
		if s.TopicID == 0 && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return ErrNoFreeSlot
	}
	t.slots[free] = Slot{TopicID: topicID, TopicName: topicName}
	return nil
}

func (t *Table) Lookup(topicID uint16) (Slot, bool) {
	if topicID == 0 {
		return Slot{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.slots {
		if s.TopicID == topicID {
			return s, true
		}
	}
	return Slot{}, false
}

// Reset frees every slot without changing the capacity.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.slots)
}
