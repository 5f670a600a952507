package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
)

var (
	ErrQueueFull   = errors.New("outcome queue full")
	ErrStoreClosed = errors.New("outcome store closed")
)

const maxBatch = 64

// inserter is the part of *mongo.Collection the store writes through.
type inserter interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// EventStore writes outcomes from a single worker goroutine so that Record
// never waits on the database.
type EventStore struct {
	collection inserter
	timeout    time.Duration
	disconnect func(ctx context.Context) error

	mu      sync.RWMutex
	closed  bool
	queue   chan *OutcomeDocument
	done    chan struct{}
	written atomic.Int64
	dropped atomic.Int64
}

func newEventStore(collection inserter, queueSize int, timeout time.Duration, disconnect func(ctx context.Context) error) *EventStore {
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &EventStore{
		collection: collection,
		timeout:    timeout,
		disconnect: disconnect,
		queue:      make(chan *OutcomeDocument, queueSize),
		done:       make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *EventStore) Record(_ context.Context, o event.Outcome) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	select {
	case s.queue <- NewOutcomeDocument(o):
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

func (s *EventStore) worker() {
	defer close(s.done)
	batch := make([]interface{}, 0, maxBatch)
	for doc := range s.queue {
		batch = append(batch[:0], doc)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-s.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		s.insert(batch)
	}
}

func (s *EventStore) insert(batch []interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	startTime := time.Now()
	result, err := s.collection.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err != nil {
		s.dropped.Add(int64(len(batch)))
		logger.ErrorF("database operation failed: %v", err)
		return
	}
	s.written.Add(int64(len(result.InsertedIDs)))
	logger.DebugF("Inserted %d outcomes in %v", len(result.InsertedIDs), time.Since(startTime))
}

// Written and Dropped count documents stored and lost so far.
func (s *EventStore) Written() int64 {
	return s.written.Load()
}

func (s *EventStore) Dropped() int64 {
	return s.dropped.Load()
}

// Invoke drains the queue and disconnects. It is safe to call more than once.
func (s *EventStore) Invoke(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("draining outcome queue: %w", ctx.Err())
	}
	if s.disconnect == nil {
		return nil
	}
	err := s.disconnect(ctx)
	s.disconnect = nil
	return err
}
