package database

import (
	"context"
	"sync"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
)

// MemoryStore keeps the most recent outcomes in memory. It is used when the
// database is disabled and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	limit    int
	outcomes []event.Outcome
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 1024
	}
	return &MemoryStore{limit: limit}
}

func (ms *MemoryStore) Record(_ context.Context, o event.Outcome) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.outcomes) == ms.limit {
		copy(ms.outcomes, ms.outcomes[1:])
		ms.outcomes = ms.outcomes[:ms.limit-1]
	}
	ms.outcomes = append(ms.outcomes, o)
	return nil
}

// Outcomes returns the stored outcomes, oldest first.
func (ms *MemoryStore) Outcomes() []event.Outcome {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]event.Outcome(nil), ms.outcomes...)
}

// Filter returns the stored outcomes of one kind.
func (ms *MemoryStore) Filter(kind event.Kind) []event.Outcome {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []event.Outcome
	for _, o := range ms.outcomes {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.outcomes)
}
